package pipeline

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ToJSONImage serializes a single OCRImageResult to pretty JSON.
func ToJSONImage(res *OCRImageResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONImages serializes multiple results to pretty JSON.
func ToJSONImages(results []*OCRImageResult) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToPlainTextImage joins region texts in region order, one per line.
func ToPlainTextImage(res *OCRImageResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	lines := make([]string, 0, len(res.Regions))
	for _, r := range res.Regions {
		if t := strings.TrimSpace(r.Text); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// ToCSVImage exports one row per region with header x1,y1,x2,y2,det_conf,text,rec_conf.
func ToCSVImage(res *OCRImageResult) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"x1", "y1", "x2", "y2", "det_conf", "text", "rec_conf"})
	for _, r := range res.Regions {
		_ = w.Write([]string{
			strconv.Itoa(r.Box.X1),
			strconv.Itoa(r.Box.Y1),
			strconv.Itoa(r.Box.X2),
			strconv.Itoa(r.Box.Y2),
			fmt.Sprintf("%.3f", r.DetConfidence),
			r.Text,
			fmt.Sprintf("%.3f", r.RecConfidence),
		})
	}
	w.Flush()
	return buf.String(), w.Error()
}

// SortRegionsTopLeft sorts regions by top edge, then left edge.
func SortRegionsTopLeft(res *OCRImageResult) {
	sort.SliceStable(res.Regions, func(i, j int) bool {
		a, b := res.Regions[i].Box, res.Regions[j].Box
		if a.Y1 == b.Y1 {
			return a.X1 < b.X1
		}
		return a.Y1 < b.Y1
	})
}

// ValidateOCRImageResult checks boxes against the image and confidence ranges.
func ValidateOCRImageResult(res *OCRImageResult) error {
	if res == nil {
		return errors.New("nil result")
	}
	if res.Width <= 0 || res.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", res.Width, res.Height)
	}
	for i, r := range res.Regions {
		b := r.Box
		if b.X1 < 0 || b.Y1 < 0 || b.X1 >= b.X2 || b.Y1 >= b.Y2 {
			return fmt.Errorf("region %d has invalid box %s", i, b)
		}
		if b.X2 > res.Width || b.Y2 > res.Height {
			return fmt.Errorf("region %d box %s exceeds image %dx%d", i, b, res.Width, res.Height)
		}
		if r.DetConfidence < 0 || r.DetConfidence > 1 {
			return fmt.Errorf("region %d det conf out of range", i)
		}
		if r.RecConfidence < 0 || r.RecConfidence > 1 {
			return fmt.Errorf("region %d rec conf out of range", i)
		}
	}
	return nil
}
