package upstream

import (
	"encoding/json"
	"fmt"
)

// FlexString absorbs upstream fields that arrive as either JSON strings or
// numbers. The withdraw API is not consistent about which it sends for
// timestamps and status codes.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// RawRecord is one withdrawal row exactly as the upstream reports it. Only
// the normalizer is allowed to interpret these fields.
type RawRecord struct {
	ID          FlexString `json:"id"`
	WithdrawID  string     `json:"withdrawId"`
	Amount      float64    `json:"amount"`
	Status      FlexString `json:"status"`
	Created     FlexString `json:"created"`
	Date        FlexString `json:"date"`
	Modified    FlexString `json:"modified"`
	SuccessDate FlexString `json:"success_date"`
	UTR         string     `json:"utr"`
	// WithdrawRequest is a JSON document encoded as a string.
	WithdrawRequest string `json:"withdrawRequest"`
}

// Page is one page of withdrawal records.
type Page struct {
	Records []RawRecord
	Total   int
	Pages   int
	Page    int
}

type apiData struct {
	Records []RawRecord `json:"records"`
	Total   int         `json:"total"`
	Pages   int         `json:"pages"`
	Page    int         `json:"page"`
	Size    int         `json:"size"`
}

type apiResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Data    *apiData `json:"data"`
}

type withdrawPayload struct {
	Page int `json:"page"`
	Size int `json:"size"`
}

type producerEvent struct {
	TS         string `json:"ts"`
	EventKey   string `json:"eventKey"`
	EventValue string `json:"eventValue"`
}

type producerPayload struct {
	Code     string          `json:"code"`
	TS       int64           `json:"ts"`
	CTS      string          `json:"cts"`
	Pkg      string          `json:"pkg"`
	Channel  string          `json:"channel"`
	PN       string          `json:"pn"`
	IP       string          `json:"ip"`
	Platform string          `json:"platform"`
	AID      string          `json:"aid"`
	GAID     *string         `json:"gaid"`
	StatUUID *string         `json:"taurus_stat_uuid"`
	UID      string          `json:"uid"`
	Type     string          `json:"type"`
	ListJSON []producerEvent `json:"listJson"`
}

// Error reports a response the upstream itself flagged as unsuccessful.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned code %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("upstream returned code %d", e.Code)
}
