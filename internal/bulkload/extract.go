// Package bulkload ingests the dated Grants.gov database extract: a zip
// archive containing one XML document whose grant records repeat under
// OpportunitySynopsisDetail elements.
package bulkload

import (
	"archive/zip"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Hali0321/Runwei-Government-Opportunity-ETL/internal/grants"
)

// DefaultExtractBaseURL is where dated extract archives are published.
const DefaultExtractBaseURL = "https://prod-grants-gov-chatbot.s3.amazonaws.com/extracts/"

// ArchiveName renders the archive file name for a date.
func ArchiveName(date time.Time) string {
	return fmt.Sprintf("GrantsDBExtract%sv2.zip", date.Format("20060102"))
}

// synopsisRecord mirrors the repeating extract element. JSON tags keep the
// PascalCase keys so the normalizer's bulk adapter sees the wire names.
type synopsisRecord struct {
	OpportunityID                    string `xml:"OpportunityID" json:"OpportunityID"`
	OpportunityNumber                string `xml:"OpportunityNumber" json:"OpportunityNumber"`
	OpportunityTitle                 string `xml:"OpportunityTitle" json:"OpportunityTitle"`
	AgencyName                       string `xml:"AgencyName" json:"AgencyName"`
	AgencyCode                       string `xml:"AgencyCode" json:"AgencyCode"`
	Description                      string `xml:"Description" json:"Description"`
	OpportunityCategory              string `xml:"OpportunityCategory" json:"OpportunityCategory,omitempty"`
	PostDate                         string `xml:"PostDate" json:"PostDate"`
	CloseDate                        string `xml:"CloseDate" json:"CloseDate"`
	LastUpdatedDate                  string `xml:"LastUpdatedDate" json:"LastUpdatedDate,omitempty"`
	ArchiveDate                      string `xml:"ArchiveDate" json:"ArchiveDate"`
	AwardFloor                       string `xml:"AwardFloor" json:"AwardFloor"`
	AwardCeiling                     string `xml:"AwardCeiling" json:"AwardCeiling"`
	EstimatedTotalProgramFunding     string `xml:"EstimatedTotalProgramFunding" json:"EstimatedTotalProgramFunding"`
	ExpectedNumberOfAwards           string `xml:"ExpectedNumberOfAwards" json:"ExpectedNumberOfAwards"`
	CategoryOfFundingActivity        string `xml:"CategoryOfFundingActivity" json:"CategoryOfFundingActivity"`
	FundingInstrumentType            string `xml:"FundingInstrumentType" json:"FundingInstrumentType"`
	CFDANumbers                      string `xml:"CFDANumbers" json:"CFDANumbers"`
	CostSharingOrMatchingRequirement string `xml:"CostSharingOrMatchingRequirement" json:"CostSharingOrMatchingRequirement"`
}

// Loader downloads and decodes extract archives.
type Loader struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

func NewLoader(baseURL string, logger *zap.Logger) *Loader {
	if baseURL == "" {
		baseURL = DefaultExtractBaseURL
	}
	return &Loader{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Minute},
		logger:  logger,
	}
}

// Download fetches the archive for a date into destDir and returns the
// local path.
func (l *Loader) Download(ctx context.Context, date time.Time, destDir string) (string, error) {
	name := ArchiveName(date)
	url := l.baseURL + name
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build extract request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download extract %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extract %s returned status %d", name, resp.StatusCode)
	}

	path := destDir + string(os.PathSeparator) + name
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	written, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	l.logger.Info("extract downloaded",
		zap.String("archive", name),
		zap.Int64("bytes", written),
	)
	return path, nil
}

// ReadArchive opens the zip at path, finds the first XML member, and
// streams its grant records to fn. A false return from fn stops early.
func (l *Loader) ReadArchive(ctx context.Context, path string, fn func(grants.RawRecord) bool) (int, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("open extract archive: %w", err)
	}
	defer func() { _ = zr.Close() }()

	var xmlFile *zip.File
	for _, f := range zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			xmlFile = f
			break
		}
	}
	if xmlFile == nil {
		return 0, fmt.Errorf("no XML document in archive %s", path)
	}

	rc, err := xmlFile.Open()
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", xmlFile.Name, err)
	}
	defer func() { _ = rc.Close() }()

	return l.decode(ctx, rc, fn)
}

// decode walks the XML token stream, decoding each repeating synopsis
// element without loading the whole document.
func (l *Loader) decode(ctx context.Context, r io.Reader, fn func(grants.RawRecord) bool) (int, error) {
	dec := xml.NewDecoder(r)
	count := 0
	for {
		if err := ctx.Err(); err != nil {
			return count, fmt.Errorf("bulk decode canceled: %w", err)
		}
		tok, err := dec.Token()
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("read extract XML: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || !strings.HasPrefix(start.Name.Local, "OpportunitySynopsisDetail") {
			continue
		}
		var rec synopsisRecord
		if err := dec.DecodeElement(&rec, &start); err != nil {
			l.logger.Warn("skipping malformed extract record", zap.Error(err))
			continue
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return count, fmt.Errorf("encode extract record: %w", err)
		}
		count++
		if !fn(grants.RawRecord{Tier: grants.TierBulk, Payload: payload}) {
			return count, nil
		}
	}
}
