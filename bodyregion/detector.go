// Package bodyregion implements the pre-analysis safety gate. It guesses
// the body region of an uploaded X-ray from image statistics and blocks
// analysis when the guess contradicts the requested region. The gate
// fails closed: a wrongly blocked valid image is preferred over a
// mismatched region reaching a chest-specific model.
package bodyregion

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RegionUnknown is returned when no region scores above its threshold.
const RegionUnknown = "unknown"

// Profile describes the heuristics for one candidate body region.
type Profile struct {
	AspectRatioRange [2]float64 `yaml:"aspect_ratio_range"`
	Keywords         []string   `yaml:"keywords"`
	DensityPattern   string     `yaml:"density_pattern"`
	MinConfidence    float64    `yaml:"min_confidence"`
}

// DefaultProfiles returns the built-in per-region heuristics.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		"chest": {
			AspectRatioRange: [2]float64{0.7, 1.3},
			Keywords:         []string{"lung", "thorax", "chest", "cardiac", "pulmonary", "rib", "heart"},
			DensityPattern:   "bimodal",
			MinConfidence:    0.7,
		},
		"abdomen": {
			AspectRatioRange: [2]float64{0.8, 1.4},
			Keywords:         []string{"abdomen", "abdominal", "bowel", "pelvis", "intestine", "gastric"},
			DensityPattern:   "multimodal",
			MinConfidence:    0.6,
		},
		"extremity": {
			AspectRatioRange: [2]float64{0.3, 3.0},
			Keywords:         []string{"bone", "joint", "extremity", "arm", "leg", "hand", "foot", "shoulder", "knee", "elbow", "wrist", "humerus", "femur"},
			DensityPattern:   "high_contrast",
			MinConfidence:    0.6,
		},
		"skull": {
			AspectRatioRange: [2]float64{0.8, 1.2},
			Keywords:         []string{"skull", "cranial", "head", "cranium", "brain"},
			DensityPattern:   "dense",
			MinConfidence:    0.7,
		},
		"spine": {
			AspectRatioRange: [2]float64{0.2, 0.6},
			Keywords:         []string{"spine", "vertebra", "spinal", "lumbar", "cervical", "thoracic"},
			DensityPattern:   "linear",
			MinConfidence:    0.6,
		},
	}
}

// LoadProfiles reads region profile overrides from a YAML file and merges
// them over the defaults. Regions absent from the file keep their defaults.
func LoadProfiles(path string) (map[string]Profile, error) {
	profiles := DefaultProfiles()
	if path == "" {
		return profiles, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read body region profiles: %w", err)
	}
	var overrides map[string]Profile
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to parse body region profiles: %w", err)
	}
	for region, p := range overrides {
		profiles[strings.ToLower(region)] = p
	}
	return profiles, nil
}

// Detection is the outcome of a region guess.
type Detection struct {
	Region     string
	Confidence float64
	Scores     map[string]float64
}

// Detector scores candidate regions against image statistics.
type Detector struct {
	profiles map[string]Profile
}

// NewDetector creates a detector over the given profiles.
func NewDetector(profiles map[string]Profile) *Detector {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	return &Detector{profiles: profiles}
}

// Detect guesses the body region of the image. Optional labels are
// externally supplied vision hints matched against each region's keywords.
// When the best score is below that region's minimum confidence the result
// is "unknown" rather than a low-confidence guess.
func (d *Detector) Detect(img image.Image, labels []string) Detection {
	stats := analyze(img)

	scores := make(map[string]float64, len(d.profiles))
	for region, p := range d.profiles {
		score := 0.0
		if stats.aspectRatio >= p.AspectRatioRange[0] && stats.aspectRatio <= p.AspectRatioRange[1] {
			score += 0.3
		}
		if n := keywordMatches(labels, p.Keywords); n > 0 {
			if n > 3 {
				n = 3
			}
			score += 0.1 * float64(n)
		}
		if matchesPattern(stats, p.DensityPattern) {
			score += 0.2
		}
		switch region {
		case "chest":
			if stats.chestLike {
				score += 0.3
			}
		case "extremity":
			if stats.contrast > 0.5 && stats.edgeDensity > 0.02 {
				score += 0.3
			}
		}
		scores[region] = math.Round(math.Min(score, 1.0)*100) / 100
	}

	best := RegionUnknown
	bestScore := -1.0
	for region, score := range scores {
		if score > bestScore || (score == bestScore && region < best) {
			best = region
			bestScore = score
		}
	}
	if bestScore < d.profiles[best].MinConfidence {
		return Detection{Region: RegionUnknown, Confidence: bestScore, Scores: scores}
	}
	return Detection{Region: best, Confidence: bestScore, Scores: scores}
}

// ValidateRegionMatch checks a detected region against the requested one.
// Unknown detections fail closed: a match cannot be confirmed.
func ValidateRegionMatch(detected, requested string) (bool, string) {
	det := strings.ToLower(strings.TrimSpace(detected))
	req := strings.ToLower(strings.TrimSpace(requested))
	if det == RegionUnknown {
		return false, "Cannot determine body region from the uploaded image. Please upload a clearer X-ray image."
	}
	if det != req {
		return false, fmt.Sprintf("Safety check failed: you requested %s analysis, but the uploaded image appears to be a %s X-ray. Analysis blocked.", req, det)
	}
	return true, ""
}

// Check runs detection and validation in one step. An empty requested
// region skips the gate entirely.
func (d *Detector) Check(img image.Image, requested string, labels []string) (bool, string) {
	if strings.TrimSpace(requested) == "" {
		return true, ""
	}
	detection := d.Detect(img, labels)
	return ValidateRegionMatch(detection.Region, requested)
}

func keywordMatches(labels, keywords []string) int {
	n := 0
	for _, label := range labels {
		lower := strings.ToLower(label)
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				n++
				break
			}
		}
	}
	return n
}

// imageStats are the grayscale measurements region scoring runs over.
type imageStats struct {
	aspectRatio float64
	numPeaks    int
	mean        float64
	contrast    float64
	edgeDensity float64
	chestLike   bool
}

func matchesPattern(s imageStats, pattern string) bool {
	switch pattern {
	case "bimodal":
		return s.numPeaks >= 1 && s.numPeaks <= 3 && s.contrast > 0.25
	case "multimodal":
		return s.numPeaks >= 3
	case "high_contrast":
		return s.contrast > 0.5
	case "dense":
		return s.mean > 100
	case "linear":
		return s.edgeDensity > 0.05
	}
	return false
}

func analyze(img image.Image) imageStats {
	gray := toGray(img)
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()

	var hist [256]float64
	var sum float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			hist[v]++
			sum += float64(v)
		}
	}
	total := float64(w * h)
	mean := sum / total

	var variance float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			variance += (v - mean) * (v - mean)
		}
	}
	std := math.Sqrt(variance / total)

	for i := range hist {
		hist[i] /= total
	}
	peaks := 0
	for i := 1; i < 255; i++ {
		if hist[i] > 0.01 && hist[i-1] < hist[i] && hist[i] > hist[i+1] {
			peaks++
		}
	}

	return imageStats{
		aspectRatio: float64(w) / float64(h),
		numPeaks:    peaks,
		mean:        mean,
		contrast:    std / (mean + 1e-8),
		edgeDensity: sobelEdgeDensity(gray),
		chestLike:   chestLike(gray),
	}
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray
}

// sobelEdgeDensity returns the fraction of pixels whose gradient magnitude
// crosses the edge threshold.
func sobelEdgeDensity(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}
	at := func(x, y int) float64 {
		return float64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
	}
	edges := 0
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			gx := -at(x-1, y-1) - 2*at(x-1, y) - at(x-1, y+1) +
				at(x+1, y-1) + 2*at(x+1, y) + at(x+1, y+1)
			gy := -at(x-1, y-1) - 2*at(x, y-1) - at(x+1, y-1) +
				at(x-1, y+1) + 2*at(x, y+1) + at(x+1, y+1)
			if math.Hypot(gx, gy) > 128 {
				edges++
			}
		}
	}
	return float64(edges) / float64((w-2)*(h-2))
}

// chestLike checks for bilateral lung fields: left and right thirds of the
// image darker than the center third (air-filled lungs flanking a denser
// mediastinum).
func chestLike(gray *image.Gray) bool {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 {
		return false
	}
	third := w / 3
	meanOf := func(x0, x1 int) float64 {
		var sum float64
		var n int
		for y := 0; y < h; y++ {
			for x := x0; x < x1; x++ {
				sum += float64(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	}
	left := meanOf(0, third)
	center := meanOf(third, 2*third)
	right := meanOf(2*third, w)
	return left < center && right < center
}
