package schema

import "github.com/danmuck/sip2ctl/internal/protocol"

// Item is the decoded view of a checkout, checkin, hold or renew response.
type Item struct {
	DueDate               string
	Title                 string
	Barcode               string
	PatronID              string
	InstitutionID         string
	Message               string
	SuccessfulTransaction bool
	SuccessfulRenewal     bool
	MagneticMedia         bool
	Desensitize           bool
}

var itemFlags = []protocol.Flag{
	{Index: itemOKOffset, True: '1'},
	{Index: itemRenewalOffset, True: 'Y'},
	{Index: itemMagneticOffset, True: 'Y'},
	{Index: itemDesensitizeOffset, True: 'Y'},
}

// ParseItem decodes raw as a response of kind code (12, 10, 16 or 30).
func ParseItem(code, raw string) (*Item, error) {
	if err := Validate(code, raw); err != nil {
		return nil, err
	}
	flags, err := protocol.ReadFlags(raw, itemFlags...)
	if err != nil {
		return nil, err
	}
	it := &Item{
		SuccessfulTransaction: flags[itemOKOffset],
		SuccessfulRenewal:     flags[itemRenewalOffset],
		MagneticMedia:         flags[itemMagneticOffset],
		Desensitize:           flags[itemDesensitizeOffset],
	}
	for _, f := range tagged(code, raw) {
		switch f.Tag {
		case protocol.TagDueDate:
			it.DueDate = f.Value
		case protocol.TagTitle:
			it.Title = f.Value
		case protocol.TagItemID:
			it.Barcode = f.Value
		case protocol.TagPatronID:
			it.PatronID = f.Value
		case protocol.TagInstitutionID:
			it.InstitutionID = f.Value
		case protocol.TagScreenMessage:
			it.Message = f.Value
		}
	}
	return it, nil
}

// ParseRenewAll reports the ok flag of a 66 response.
func ParseRenewAll(raw string) (bool, error) {
	return parseAck(protocol.CodeRenewAllResponse, raw, '1')
}

// ParseEndSession reports the end-session flag of a 36 response.
func ParseEndSession(raw string) (bool, error) {
	return parseAck(protocol.CodeEndSessionResp, raw, 'Y')
}

func parseAck(code, raw string, want byte) (bool, error) {
	if err := Validate(code, raw); err != nil {
		return false, err
	}
	flags, err := protocol.ReadFlags(raw, protocol.Flag{Index: ackOffset, True: want})
	if err != nil {
		return false, err
	}
	return flags[ackOffset], nil
}
