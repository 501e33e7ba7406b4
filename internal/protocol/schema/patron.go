package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/sip2ctl/internal/protocol"
	"github.com/shopspring/decimal"
)

// Patron is the decoded view of a 64 patron information response.
type Patron struct {
	Name          string
	Type          string
	Fines         decimal.Decimal
	FineLimit     decimal.Decimal
	Message       string
	HoldItemLimit int
	Pin           string
	Address       string
	Phone         string
	Email         string
	Authorized    bool
}

// CanCirculate reports whether the patron may borrow: not blocked and
// owing less than the fine limit.
func (p *Patron) CanCirculate() bool {
	return p.Authorized && p.Fines.LessThan(p.FineLimit)
}

// ParsePatron decodes a 64 response. Authorized starts true and is cleared
// by any Y in the 14-character patron status, or by a BL value of N.
func ParsePatron(raw string) (*Patron, error) {
	if err := Validate(protocol.CodePatronResponse, raw); err != nil {
		return nil, err
	}
	p := &Patron{Authorized: true}

	status := raw[patronStatusOffset : patronStatusOffset+patronStatusLen]
	if strings.ContainsRune(status, 'Y') {
		p.Authorized = false
	}

	for _, f := range tagged(protocol.CodePatronResponse, raw) {
		var err error
		switch f.Tag {
		case protocol.TagPersonalName:
			p.Name = f.Value
		case protocol.TagValidPIN:
			p.Pin = f.Value
		case protocol.TagFeeAmount:
			p.Fines, err = parseDecimal(f)
		case protocol.TagFeeLimit:
			p.FineLimit, err = parseDecimal(f)
		case protocol.TagHomeAddress:
			p.Address = f.Value
		case protocol.TagEmail:
			p.Email = f.Value
		case protocol.TagPhone:
			p.Phone = f.Value
		case protocol.TagScreenMessage:
			p.Message = f.Value
		case protocol.TagPatronType:
			p.Type = f.Value
		case protocol.TagHoldItemsLimit:
			p.HoldItemLimit, err = strconv.Atoi(strings.TrimSpace(f.Value))
			if err != nil {
				err = fmt.Errorf("%w: %s=%q", protocol.ErrMalformedResponse, f.Tag, f.Value)
			}
		case protocol.TagValidPatron:
			if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(f.Value)), "N") {
				p.Authorized = false
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

func parseDecimal(f protocol.Field) (decimal.Decimal, error) {
	v := strings.TrimSpace(f.Value)
	if v == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s=%q", protocol.ErrMalformedResponse, f.Tag, f.Value)
	}
	return d, nil
}
