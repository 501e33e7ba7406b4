package protocol

// Delimiter separates tagged fields. Values are never escaped on the wire.
const Delimiter = '|'

// Terminator ends every message in both directions.
const Terminator = '\r'

// Command codes. Requests are paired with the response code that answers them.
const (
	CodeLogin            = "93"
	CodeLoginResponse    = "94"
	CodeSCStatus         = "99"
	CodeACSStatus        = "98"
	CodePatronStatus     = "63"
	CodePatronResponse   = "64"
	CodeCheckout         = "11"
	CodeCheckoutResponse = "12"
	CodeCheckin          = "09"
	CodeCheckinResponse  = "10"
	CodeHold             = "15"
	CodeHoldResponse     = "16"
	CodeRenew            = "29"
	CodeRenewResponse    = "30"
	CodeRenewAll         = "65"
	CodeRenewAllResponse = "66"
	CodeEndSession       = "35"
	CodeEndSessionResp   = "36"
	CodeRequestResend    = "96"
)

// Status codes inspected in login responses.
const (
	StatusLoginOK      = "941"
	StatusLoginInvalid = "940"
)

// Field tags.
const (
	TagPatronID       = "AA"
	TagItemID         = "AB"
	TagTerminalPass   = "AC"
	TagPatronPass     = "AD"
	TagPersonalName   = "AE"
	TagScreenMessage  = "AF"
	TagDueDate        = "AH"
	TagTitle          = "AJ"
	TagInstitutionID  = "AO"
	TagCurrentLoc     = "AP"
	TagSequence       = "AY"
	TagChecksum       = "AZ"
	TagHomeAddress    = "BD"
	TagEmail          = "BE"
	TagPhone          = "BF"
	TagValidPatron    = "BL"
	TagStartItem      = "BP"
	TagEndItem        = "BQ"
	TagFeeAmount      = "BV"
	TagHoldItemsLimit = "BZ"
	TagFeeLimit       = "CC"
	TagLoginUserID    = "CN"
	TagLoginPassword  = "CO"
	TagLocationCode   = "CP"
	TagValidPIN       = "CQ"
	TagPatronType     = "PT"
)

// TimestampLen is the width of every date field on the wire.
const TimestampLen = 18
