package normalize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

func TestNormalize_SearchHit(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"id": "351423",
		"number": "ED-GRANTS-082925-001",
		"title": "Education Innovation Program",
		"agency": "Department of Education",
		"agencyCode": "ED",
		"oppStatus": "posted",
		"openDate": "08/01/2025",
		"closeDate": "10/15/2025",
		"docType": "synopsis",
		"cfdaList": ["84.411"]
	}`)

	opp, err := New().Normalize(grants.RawRecord{Tier: grants.TierSearch, Payload: payload})
	require.NoError(t, err)

	require.Equal(t, "351423", opp.ID)
	require.Equal(t, "Education Innovation Program", opp.Title)
	require.Equal(t, "ED", opp.AgencyCode)
	require.Equal(t, "Department of Education", opp.AgencyName)
	require.Equal(t, grants.StatusPosted, opp.Status)
	require.Equal(t, "2025-08-01", opp.OpenDate)
	require.Equal(t, "2025-10-15", opp.CloseDate)
	require.Equal(t, "84.411", opp.CFDANumbers)
	require.Equal(t, "https://www.grants.gov/search-results-detail/351423", opp.OpportunityURL)
	require.Equal(t, grants.TierSearch, opp.SourceTier)
	require.JSONEq(t, string(payload), string(opp.RawSource))
}

func TestNormalize_DetailNestedSynopsis(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"id": 351423,
		"opportunityNumber": "ED-GRANTS-082925-001",
		"opportunityTitle": "Education Innovation Program",
		"owningAgencyCode": "ED",
		"synopsis": {
			"agencyName": "Department of Education",
			"synopsisDesc": "Funds innovative education models.",
			"awardFloor": "$50,000",
			"awardCeiling": "$1,500,000",
			"estimatedFunding": "10,000,000",
			"expectedNumberOfAwards": "12",
			"postingDate": "Aug 1, 2025",
			"responseDate": "Oct 15, 2025",
			"fundingInstruments": [{"description": "Grant"}],
			"fundingActivityCategories": [{"description": "Education"}]
		},
		"cfdas": [{"cfdaNumber": "84.411"}, {"cfdaNumber": "84.412"}]
	}`)

	opp, err := New().Normalize(grants.RawRecord{Tier: grants.TierDetail, Payload: payload})
	require.NoError(t, err)

	require.Equal(t, "351423", opp.ID)
	require.Equal(t, "Funds innovative education models.", opp.Description)
	require.InDelta(t, 50000.0, opp.AwardFloor, 0.001)
	require.InDelta(t, 1500000.0, opp.AwardCeiling, 0.001)
	require.InDelta(t, 10000000.0, opp.EstimatedFunding, 0.001)
	require.Equal(t, 12, opp.ExpectedAwards)
	require.Equal(t, "Grant", opp.FundingType)
	require.Equal(t, "Education", opp.Category)
	require.Equal(t, "84.411, 84.412", opp.CFDANumbers)
	require.Equal(t, "2025-08-01", opp.OpenDate)
	require.Equal(t, "2025-10-15", opp.CloseDate)
}

func TestNormalize_ScrapeLabels(t *testing.T) {
	t.Parallel()

	payload, err := json.Marshal(map[string]string{
		"Opportunity ID":                  "356001",
		"Opportunity Title":               "Rural Health Outreach",
		"Award Ceiling:":                  "$250,000",
		"Award Floor":                     "$25,000",
		"Expected Number of Awards":       "8",
		"Posted Date":                     "Jul 4, 2025",
		"Close Date":                      "09/30/2025",
		"Category of Funding Activity":    "Health",
		"Funding Instrument Type":         "Cooperative Agreement",
		"CFDA Number(s)":                  "93.912",
		"Estimated Total Program Funding": "$2,000,000",
		"Some Unknown Label":              "ignored",
	})
	require.NoError(t, err)

	opp, err := New().Normalize(grants.RawRecord{Tier: grants.TierScrape, Payload: payload})
	require.NoError(t, err)

	require.Equal(t, "356001", opp.ID)
	require.Equal(t, "Rural Health Outreach", opp.Title)
	require.InDelta(t, 250000.0, opp.AwardCeiling, 0.001)
	require.InDelta(t, 25000.0, opp.AwardFloor, 0.001)
	require.Equal(t, 8, opp.ExpectedAwards)
	require.Equal(t, "2025-07-04", opp.OpenDate)
	require.Equal(t, "2025-09-30", opp.CloseDate)
	require.Equal(t, "Health", opp.Category)
	require.Equal(t, "Cooperative Agreement", opp.FundingType)
}

func TestNormalize_BulkExtractRecord(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"OpportunityID": "341131",
		"OpportunityNumber": "HHS-2025-ACF-001",
		"OpportunityTitle": "Community Services Block Grant",
		"AgencyName": "Administration for Children and Families",
		"AgencyCode": "HHS-ACF",
		"PostDate": "06012025",
		"CloseDate": "08312025",
		"ArchiveDate": "09302025",
		"AwardFloor": "10000",
		"AwardCeiling": "500000",
		"EstimatedTotalProgramFunding": "5000000",
		"ExpectedNumberOfAwards": "20",
		"CategoryOfFundingActivity": "Income Security and Social Services",
		"FundingInstrumentType": "G",
		"CFDANumbers": "93.569",
		"CostSharingOrMatchingRequirement": "No"
	}`)

	opp, err := New().Normalize(grants.RawRecord{Tier: grants.TierBulk, Payload: payload})
	require.NoError(t, err)

	require.Equal(t, "341131", opp.ID)
	require.Equal(t, "2025-06-01", opp.OpenDate)
	require.Equal(t, "2025-08-31", opp.CloseDate)
	require.Equal(t, "2025-09-30", opp.ArchiveDate)
	require.InDelta(t, 500000.0, opp.AwardCeiling, 0.001)
	require.Equal(t, 20, opp.ExpectedAwards)
	require.Equal(t, "No", opp.CostSharing)
}

func TestNormalize_RejectsMissingRequiredFields(t *testing.T) {
	t.Parallel()

	n := New()

	_, err := n.Normalize(grants.RawRecord{
		Tier:    grants.TierSearch,
		Payload: json.RawMessage(`{"title": "No ID Here"}`),
	})
	reason, ok := IsRejection(err)
	require.True(t, ok)
	require.Equal(t, ReasonMissingID, reason)

	_, err = n.Normalize(grants.RawRecord{
		Tier:    grants.TierSearch,
		Payload: json.RawMessage(`{"id": "12345"}`),
	})
	reason, ok = IsRejection(err)
	require.True(t, ok)
	require.Equal(t, ReasonMissingTitle, reason)
}

func TestNormalize_RepairsInvertedAwardRange(t *testing.T) {
	t.Parallel()

	payload := json.RawMessage(`{
		"id": "777",
		"title": "Inverted Range",
		"synopsis": {"awardFloor": "500000", "awardCeiling": "50000"}
	}`)

	opp, err := New().Normalize(grants.RawRecord{Tier: grants.TierDetail, Payload: payload})
	require.NoError(t, err)
	require.InDelta(t, 50000.0, opp.AwardFloor, 0.001)
	require.InDelta(t, 500000.0, opp.AwardCeiling, 0.001)
}

func TestNormalizeStatus(t *testing.T) {
	t.Parallel()

	require.Equal(t, grants.StatusPosted, NormalizeStatus("Posted"))
	require.Equal(t, grants.StatusForecasted, NormalizeStatus("forecasted"))
	require.Equal(t, grants.StatusClosed, NormalizeStatus("CLOSED"))
	require.Equal(t, grants.StatusArchived, NormalizeStatus("archived"))
	require.Equal(t, grants.StatusUnknown, NormalizeStatus("pending review"))
	require.Equal(t, "", NormalizeStatus(""))
}
