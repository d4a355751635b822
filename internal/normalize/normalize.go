package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

// Rejection reasons attached to RejectError.
const (
	ReasonMissingID    = "missing_id"
	ReasonMissingTitle = "missing_title"
	ReasonBadPayload   = "bad_payload"
)

// RejectError marks a payload that cannot become a canonical record.
// Batch callers count rejections and continue.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string { return "record rejected: " + e.Reason }

// IsRejection reports whether err is a RejectError and returns its reason.
func IsRejection(err error) (string, bool) {
	var re *RejectError
	if errors.As(err, &re) {
		return re.Reason, true
	}
	return "", false
}

// scrapeLabelFields maps the free-text labels seen on detail pages onto
// canonical fields. Labels are matched after lowercasing and trimming a
// trailing colon; multiple labels can feed the same field because the site
// has shipped several page layouts.
var scrapeLabelFields = map[string]string{
	"opportunity number":                  "number",
	"funding opportunity number":          "number",
	"opportunity id":                      "id",
	"opportunity title":                   "title",
	"opportunity category":                "category",
	"funding category":                    "category",
	"category of funding activity":        "category",
	"funding instrument type":             "fundingType",
	"category of funding instrument":      "fundingType",
	"cfda number(s)":                      "cfdaNumbers",
	"expected number of awards":           "expectedNumberOfAwards",
	"award ceiling":                       "awardCeiling",
	"award floor":                         "awardFloor",
	"posted date":                         "openDate",
	"close date":                          "closeDate",
	"original close date":                 "closeDate",
	"archive date":                        "archiveDate",
	"estimated total program funding":     "estimatedTotalProgramFunding",
	"agency name":                         "agencyName",
	"description":                         "description",
	"cost sharing or matching requirement": "costSharing",
}

// Normalizer converts raw tier-tagged payloads into canonical records.
type Normalizer struct{}

func New() *Normalizer { return &Normalizer{} }

// Normalize dispatches on the record's source tier. It returns exactly one
// Opportunity or a RejectError; any other error means the payload was not
// even decodable JSON.
func (n *Normalizer) Normalize(raw grants.RawRecord) (grants.Opportunity, error) {
	var opp grants.Opportunity
	var err error
	switch raw.Tier {
	case grants.TierSearch:
		opp, err = n.fromSearchHit(raw.Payload)
	case grants.TierDetail:
		opp, err = n.fromDetail(raw.Payload)
	case grants.TierScrape:
		opp, err = n.fromScrape(raw.Payload)
	case grants.TierBulk:
		opp, err = n.fromBulk(raw.Payload)
	default:
		return grants.Opportunity{}, fmt.Errorf("unknown source tier %q", raw.Tier)
	}
	if err != nil {
		return grants.Opportunity{}, err
	}
	if opp.ID == "" {
		return grants.Opportunity{}, &RejectError{Reason: ReasonMissingID}
	}
	if opp.Title == "" {
		return grants.Opportunity{}, &RejectError{Reason: ReasonMissingTitle}
	}
	opp.SourceTier = raw.Tier
	opp.RawSource = append(json.RawMessage(nil), raw.Payload...)
	opp.OpportunityURL = fmt.Sprintf(grants.DetailURLTemplate, opp.ID)
	opp.RepairAwardRange()
	return opp, nil
}

// fromSearchHit flattens one search2 oppHit. Search hits are flat records
// using lowerCamel keys.
func (n *Normalizer) fromSearchHit(payload json.RawMessage) (grants.Opportunity, error) {
	m, err := decodeObject(payload)
	if err != nil {
		return grants.Opportunity{}, err
	}
	opp := grants.Opportunity{
		ID:          pick(m, "id"),
		Number:      pick(m, "number", "oppNum"),
		Title:       pick(m, "title"),
		AgencyName:  pick(m, "agency", "agencyName"),
		AgencyCode:  pick(m, "agencyCode"),
		Description: pick(m, "description", "synopsis"),
		Status:      NormalizeStatus(pick(m, "oppStatus", "status")),
		DocType:     pick(m, "docType"),
		OpenDate:    Date(pick(m, "openDate")),
		CloseDate:   Date(pick(m, "closeDate")),
		CFDANumbers: joinCFDA(m),
	}
	if opp.ID == "" {
		// Some hits carry only the opportunity number.
		opp.ID = opp.Number
	}
	return opp, nil
}

// fromDetail handles fetchOpportunity payloads, which nest most of the
// useful content under "synopsis". Key names here have drifted across API
// versions, hence the prioritized alternatives.
func (n *Normalizer) fromDetail(payload json.RawMessage) (grants.Opportunity, error) {
	m, err := decodeObject(payload)
	if err != nil {
		return grants.Opportunity{}, err
	}
	syn, _ := m["synopsis"].(map[string]any)
	if syn == nil {
		syn = map[string]any{}
	}
	opp := grants.Opportunity{
		ID:               pick(m, "id", "opportunityId"),
		Number:           pick(m, "opportunityNumber", "number"),
		Title:            pick(m, "opportunityTitle", "title"),
		AgencyName:       firstNonEmpty(pick(syn, "agencyName"), pick(m, "agency", "agencyName")),
		AgencyCode:       firstNonEmpty(pick(syn, "agencyCode"), pick(m, "owningAgencyCode", "agencyCode")),
		Description:      firstNonEmpty(pick(syn, "synopsisDesc", "description"), pick(m, "description")),
		Status:           NormalizeStatus(pick(m, "oppStatus", "status")),
		DocType:          pick(m, "docType"),
		OpenDate:         Date(firstNonEmpty(pick(syn, "postingDate", "postedDate"), pick(m, "openDate"))),
		CloseDate:        Date(firstNonEmpty(pick(syn, "responseDate"), pick(m, "closeDate"))),
		ArchiveDate:      Date(pick(syn, "archiveDate")),
		AwardFloor:       Money(value(syn, "awardFloor")),
		AwardCeiling:     Money(value(syn, "awardCeiling")),
		EstimatedFunding: Money(value(syn, "estimatedFunding", "estimatedTotalProgramFunding")),
		ExpectedAwards:   Count(value(syn, "expectedNumberOfAwards", "expectedNumOfAwards")),
		Category:         firstNonEmpty(descriptions(syn, "fundingActivityCategories"), pick(m, "fundingCategory")),
		FundingType:      firstNonEmpty(descriptions(syn, "fundingInstruments"), pick(m, "fundingInstrument")),
		CFDANumbers:      joinCFDA(m),
		CostSharing:      pick(syn, "costSharing"),
	}
	return opp, nil
}

// fromScrape consumes the label/value pairs produced by the detail-page
// scraper, mapped through the fixed label table.
func (n *Normalizer) fromScrape(payload json.RawMessage) (grants.Opportunity, error) {
	var labels map[string]string
	if err := json.Unmarshal(payload, &labels); err != nil {
		return grants.Opportunity{}, fmt.Errorf("decode scrape payload: %w", err)
	}
	fields := map[string]string{}
	for label, val := range labels {
		key := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(label)), ":")
		field, ok := scrapeLabelFields[key]
		if !ok {
			continue
		}
		if _, exists := fields[field]; !exists {
			fields[field] = val
		}
	}
	opp := grants.Opportunity{
		ID:               CleanText(fields["id"]),
		Number:           CleanText(fields["number"]),
		Title:            CleanText(fields["title"]),
		AgencyName:       CleanText(fields["agencyName"]),
		Description:      CleanText(fields["description"]),
		OpenDate:         Date(fields["openDate"]),
		CloseDate:        Date(fields["closeDate"]),
		ArchiveDate:      Date(fields["archiveDate"]),
		AwardFloor:       Money(fields["awardFloor"]),
		AwardCeiling:     Money(fields["awardCeiling"]),
		EstimatedFunding: Money(fields["estimatedTotalProgramFunding"]),
		ExpectedAwards:   Count(fields["expectedNumberOfAwards"]),
		Category:         CleanText(fields["category"]),
		FundingType:      CleanText(fields["fundingType"]),
		CFDANumbers:      CleanText(fields["cfdaNumbers"]),
		CostSharing:      CleanText(fields["costSharing"]),
	}
	if opp.ID == "" {
		opp.ID = opp.Number
	}
	return opp, nil
}

// fromBulk consumes one OpportunitySynopsisDetail record from the XML
// extract. Keys are PascalCase and dates use the 8-digit encoding.
func (n *Normalizer) fromBulk(payload json.RawMessage) (grants.Opportunity, error) {
	m, err := decodeObject(payload)
	if err != nil {
		return grants.Opportunity{}, err
	}
	opp := grants.Opportunity{
		ID:               pick(m, "OpportunityID"),
		Number:           pick(m, "OpportunityNumber"),
		Title:            pick(m, "OpportunityTitle"),
		AgencyName:       pick(m, "AgencyName"),
		AgencyCode:       pick(m, "AgencyCode"),
		Description:      pick(m, "Description"),
		OpenDate:         Date(pick(m, "PostDate")),
		CloseDate:        Date(pick(m, "CloseDate")),
		ArchiveDate:      Date(pick(m, "ArchiveDate")),
		AwardFloor:       Money(value(m, "AwardFloor")),
		AwardCeiling:     Money(value(m, "AwardCeiling")),
		EstimatedFunding: Money(value(m, "EstimatedTotalProgramFunding")),
		ExpectedAwards:   Count(value(m, "ExpectedNumberOfAwards")),
		Category:         pick(m, "CategoryOfFundingActivity"),
		FundingType:      pick(m, "FundingInstrumentType"),
		CFDANumbers:      pick(m, "CFDANumbers"),
		CostSharing:      pick(m, "CostSharingOrMatchingRequirement"),
	}
	return opp, nil
}

// NormalizeStatus folds source status spellings into the stored enum.
// An empty input stays empty so a merge never downgrades a known status.
func NormalizeStatus(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return ""
	case "posted", "open":
		return grants.StatusPosted
	case "forecasted", "forecast":
		return grants.StatusForecasted
	case "closed":
		return grants.StatusClosed
	case "archived", "archive":
		return grants.StatusArchived
	default:
		return grants.StatusUnknown
	}
}

func decodeObject(payload json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return m, nil
}

// pick returns the first non-empty cleaned string among candidate keys.
func pick(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := Stringify(m[k]); s != "" {
			return s
		}
	}
	return ""
}

// value returns the first present raw value among candidate keys.
func value(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// descriptions joins the "description" members of a list-of-objects field,
// the shape fetchOpportunity uses for funding instruments and categories.
func descriptions(m map[string]any, key string) string {
	list, ok := m[key].([]any)
	if !ok {
		return ""
	}
	var parts []string
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if d := Stringify(obj["description"]); d != "" {
			parts = append(parts, d)
		}
	}
	return strings.Join(parts, ", ")
}

// joinCFDA collects CFDA numbers from the shapes the API has used: a
// cfdaList of strings, a cfdas list of objects, or a bare cfda string.
func joinCFDA(m map[string]any) string {
	if list, ok := m["cfdaList"].([]any); ok && len(list) > 0 {
		parts := make([]string, 0, len(list))
		for _, v := range list {
			if s := Stringify(v); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}
	if list, ok := m["cfdas"].([]any); ok && len(list) > 0 {
		var parts []string
		for _, v := range list {
			if obj, ok := v.(map[string]any); ok {
				if s := Stringify(obj["cfdaNumber"]); s != "" {
					parts = append(parts, s)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, ", ")
		}
	}
	return pick(m, "cfda", "cfdaNumber")
}
