package bulkload

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

const extractFixture = `<?xml version="1.0" encoding="UTF-8"?>
<Grants xmlns="http://apply.grants.gov/system/OpportunityDetail-V1.0">
  <OpportunitySynopsisDetail_1_0>
    <OpportunityID>351423</OpportunityID>
    <OpportunityNumber>ED-GRANTS-2025-01</OpportunityNumber>
    <OpportunityTitle>Education Innovation Grants</OpportunityTitle>
    <AgencyName>Department of Education</AgencyName>
    <AgencyCode>ED</AgencyCode>
    <Description>Supports education innovation.</Description>
    <PostDate>08152025</PostDate>
    <CloseDate>10152025</CloseDate>
    <AwardFloor>50000</AwardFloor>
    <AwardCeiling>250000</AwardCeiling>
    <EstimatedTotalProgramFunding>1500000</EstimatedTotalProgramFunding>
    <ExpectedNumberOfAwards>6</ExpectedNumberOfAwards>
    <CFDANumbers>84.411</CFDANumbers>
    <CostSharingOrMatchingRequirement>No</CostSharingOrMatchingRequirement>
  </OpportunitySynopsisDetail_1_0>
  <OpportunitySynopsisDetail_1_0>
    <OpportunityID>351424</OpportunityID>
    <OpportunityTitle>Rural Health Outreach</OpportunityTitle>
    <AgencyName>HHS</AgencyName>
  </OpportunitySynopsisDetail_1_0>
</Grants>`

func writeArchive(t *testing.T, members map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	path := filepath.Join(t.TempDir(), "extract.zip")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestArchiveName(t *testing.T) {
	t.Parallel()

	date := time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	require.Equal(t, "GrantsDBExtract20250815v2.zip", ArchiveName(date))
}

func TestReadArchive(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, map[string]string{
		"GrantsDBExtract20250815v2.xml": extractFixture,
	})

	loader := NewLoader("", zap.NewNop())
	var records []grants.RawRecord
	count, err := loader.ReadArchive(context.Background(), path, func(r grants.RawRecord) bool {
		records = append(records, r)
		return true
	})
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Len(t, records, 2)
	require.Equal(t, grants.TierBulk, records[0].Tier)

	var first map[string]any
	require.NoError(t, json.Unmarshal(records[0].Payload, &first))
	require.Equal(t, "351423", first["OpportunityID"])
	require.Equal(t, "Education Innovation Grants", first["OpportunityTitle"])
	require.Equal(t, "250000", first["AwardCeiling"])
}

func TestReadArchiveStopsEarly(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, map[string]string{
		"extract.xml": extractFixture,
	})

	loader := NewLoader("", zap.NewNop())
	count, err := loader.ReadArchive(context.Background(), path, func(grants.RawRecord) bool {
		return false
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestReadArchiveNoXML(t *testing.T) {
	t.Parallel()

	path := writeArchive(t, map[string]string{
		"readme.txt": "not an extract",
	})

	loader := NewLoader("", zap.NewNop())
	_, err := loader.ReadArchive(context.Background(), path, func(grants.RawRecord) bool {
		return true
	})
	require.Error(t, err)
}
