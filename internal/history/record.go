package history

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ScanRecord is one analysed leaf image. The JSON layout is the one the
// mobile app has always persisted; Category and Disease are optional tags
// that older records do not carry.
type ScanRecord struct {
	ID         string     `json:"id"`
	Date       string     `json:"date"`
	Time       string     `json:"time"`
	Result     string     `json:"result"`
	Confidence Confidence `json:"confidence"`
	Location   string     `json:"location"`
	Image      string     `json:"image"`
	Warning    *string    `json:"warning"`
	Category   Category   `json:"category,omitempty"`
	Disease    string     `json:"disease,omitempty"`
}

// Confidence is kept as text. The inference server answers with a float,
// older clients stored a formatted string; both decode.
type Confidence string

func (c *Confidence) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = Confidence(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*c = Confidence(strconv.FormatFloat(f, 'f', -1, 64))
	return nil
}

// Scan carries what the inference server returned for one image.
type Scan struct {
	Label      string
	Confidence string
	Location   string
	Image      string
	Warning    string
}

const defaultLocation = "Vị trí hiện tại"

// NewScanRecord builds a record stamped with now and tagged by catalog.
func NewScanRecord(s Scan, catalog *Catalog, now time.Time) ScanRecord {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	category, disease := catalog.Classify(s.Label)
	rec := ScanRecord{
		ID:         NewID(now),
		Date:       now.Format("2/1/2006"),
		Time:       now.Format("15:04"),
		Result:     s.Label,
		Confidence: Confidence(s.Confidence),
		Location:   s.Location,
		Image:      s.Image,
		Category:   category,
		Disease:    disease,
	}
	if strings.TrimSpace(rec.Location) == "" {
		rec.Location = defaultLocation
	}
	if s.Warning != "" {
		w := s.Warning
		rec.Warning = &w
	}
	return rec
}

// NewID returns a timestamp-derived id with a short random suffix so two
// scans within the same millisecond do not collide.
func NewID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + strings.ReplaceAll(uuid.NewString(), "-", "")[:5]
}

// Tags returns the record's category and disease bucket, deriving them from
// the free-text result for records written before tagging existed.
func (r ScanRecord) Tags(catalog *Catalog) (Category, string) {
	if r.Category.Valid() {
		if r.Category == CategoryDiseased && r.Disease == "" {
			return r.Category, catalog.DiseaseOf(r.Result)
		}
		return r.Category, r.Disease
	}
	return catalog.Classify(r.Result)
}
