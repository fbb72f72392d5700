// Package normalize is the single boundary that turns raw upstream shapes
// into canonical TransactionRecords. It never fails: unparseable input
// degrades to raw/empty values, reported as Issues, because partial data is
// preferable to dropping the row.
package normalize

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"transaction-sync-backend/internal/models"
	"transaction-sync-backend/internal/services/upstream"
)

// Issue is a recoverable degradation observed while normalizing one record.
type Issue struct {
	Field  string
	Reason string
}

var (
	millisPattern    = regexp.MustCompile(`^\d{13}$`)
	secondsPattern   = regexp.MustCompile(`^\d{10}$`)
	bareLocalPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`)
)

// The upstream emits bare local timestamps in IST.
var upstreamLocalZone = time.FixedZone("UTC+05:30", 5*3600+30*60)

// ParseUpstreamTime decodes the date encodings the upstream is known to use,
// in priority order: millisecond epoch, second epoch, a timestamp carrying
// its own zone, and a bare local timestamp assumed to be +05:30. All results
// are UTC. ok is false when nothing matched.
func ParseUpstreamTime(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	switch {
	case millisPattern.MatchString(s):
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return time.UnixMilli(n).UTC(), true
		}
	case secondsPattern.MatchString(s):
		n, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return time.Unix(n, 0).UTC(), true
		}
	case bareLocalPattern.MatchString(s):
		parsed, err := time.ParseInLocation("2006-01-02 15:04:05", s, upstreamLocalZone)
		if err == nil {
			return parsed.UTC(), true
		}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// statusFromCode maps the upstream numeric status onto the enum. Unknown
// codes are Failed, never Succeeded.
func statusFromCode(code int) models.TransactionStatus {
	switch code {
	case 2:
		return models.StatusProcessing
	case 4:
		return models.StatusSucceeded
	default:
		return models.StatusFailed
	}
}

// bankDetails is the sub-document the upstream JSON-encodes into a string.
type bankDetails struct {
	HolderName    string `json:"bankAccountHolderName"`
	AccountNumber string `json:"bankAccountNumber"`
	RoutingCode   string `json:"bankAccountIfscCode"`
}

// Normalize converts one raw record into a canonical TransactionRecord.
// Returned Issues describe fields that degraded; the record is always usable.
func Normalize(raw upstream.RawRecord, source models.SourceID) (models.TransactionRecord, []Issue) {
	var issues []Issue
	now := time.Now().UTC()

	externalID := raw.WithdrawID
	if externalID == "" {
		externalID = raw.ID.String()
	}

	statusCode := 0
	if s := raw.Status.String(); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			issues = append(issues, Issue{Field: "status", Reason: "non-numeric status code"})
		} else {
			statusCode = n
		}
	}

	amount := decimal.NewFromFloat(raw.Amount)
	if amount.IsNegative() {
		issues = append(issues, Issue{Field: "amount", Reason: "negative amount from upstream"})
		amount = decimal.Zero
	}

	rec := models.TransactionRecord{
		ID:         uuid.New(),
		ExternalID: externalID,
		SourceID:   source,
		Amount:     amount,
		Status:     statusFromCode(statusCode),
		StatusCode: statusCode,
		Reference:  raw.UTR,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if occurredRaw := firstNonEmpty(raw.Created.String(), raw.Date.String()); occurredRaw != "" {
		if t, ok := ParseUpstreamTime(occurredRaw); ok {
			rec.OccurredAt = t
		} else {
			rec.OccurredAtRaw = occurredRaw
			issues = append(issues, Issue{Field: "occurredAt", Reason: "unrecognized date encoding"})
		}
	}

	if settledRaw := firstNonEmpty(raw.Modified.String(), raw.SuccessDate.String()); settledRaw != "" {
		if t, ok := ParseUpstreamTime(settledRaw); ok {
			rec.SettledAt = &t
		} else {
			issues = append(issues, Issue{Field: "settledAt", Reason: "unrecognized date encoding"})
		}
	}

	if raw.WithdrawRequest != "" {
		var details bankDetails
		if err := json.Unmarshal([]byte(raw.WithdrawRequest), &details); err != nil {
			issues = append(issues, Issue{Field: "bankDetails", Reason: "unparseable embedded JSON"})
		} else {
			rec.HolderName = details.HolderName
			rec.AccountNumber = details.AccountNumber
			rec.RoutingCode = details.RoutingCode
			rec.BankDetails = datatypes.JSON(raw.WithdrawRequest)
		}
	}

	return rec, issues
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
