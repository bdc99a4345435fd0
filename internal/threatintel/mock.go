package threatintel

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"portal-api/internal/model"
)

type hub struct {
	label string
	lat   float64
	lon   float64
}

var hubs = []hub{
	{"Lagos", 6.5244, 3.3792},
	{"Nairobi", -1.2921, 36.8219},
	{"Johannesburg", -26.2041, 28.0473},
	{"London", 51.5074, -0.1278},
	{"Frankfurt", 50.1109, 8.6821},
	{"Ashburn", 39.0438, -77.4874},
	{"São Paulo", -23.5505, -46.6333},
	{"Singapore", 1.3521, 103.8198},
	{"Tokyo", 35.6762, 139.6503},
	{"Sydney", -33.8688, 151.2093},
	{"Mumbai", 19.076, 72.8777},
	{"Dubai", 25.2048, 55.2708},
}

var attackLabels = []string{
	"Credential stuffing burst",
	"Ransomware beaconing",
	"Phishing kit callback",
	"Botnet C2 traffic",
	"SQL injection probe",
	"Brute-force SSH sweep",
	"Data exfiltration attempt",
	"Malware dropper download",
	"DNS tunneling",
	"Cryptomining callback",
}

// severity weights skew toward the low end so the mock feed looks like real
// telemetry rather than a wall of criticals.
var severityWeights = []struct {
	severity string
	weight   int
}{
	{model.SeverityLow, 35},
	{model.SeverityMedium, 30},
	{model.SeverityHigh, 20},
	{model.SeverityCritical, 10},
	{model.SeverityInfo, 5},
}

// Generator produces synthetic threat flows when no live source is
// reachable. The rng is injectable so tests get deterministic output.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	n   int
}

func NewGenerator() *Generator {
	return &Generator{rng: rand.New(rand.NewSource(time.Now().UnixNano())), n: 24}
}

// NewSeededGenerator returns a generator with a fixed seed, for tests.
func NewSeededGenerator(seed int64, n int) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed)), n: n}
}

func (g *Generator) Name() string { return "mock" }

// Fetch synthesizes a batch of flows between distinct global hubs. It never
// fails; it is the terminal fallback of the source chain.
func (g *Generator) Fetch(_ context.Context) ([]model.ThreatEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now().UTC()
	events := make([]model.ThreatEvent, 0, g.n)
	for i := 0; i < g.n; i++ {
		origin := hubs[g.rng.Intn(len(hubs))]
		target := hubs[g.rng.Intn(len(hubs))]
		for target.label == origin.label {
			target = hubs[g.rng.Intn(len(hubs))]
		}
		events = append(events, model.ThreatEvent{
			ID:         fmt.Sprintf("MOCK-%d-%d", now.UnixNano(), i),
			Label:      attackLabels[g.rng.Intn(len(attackLabels))],
			Severity:   g.pickSeverity(),
			Feed:       "Synthetic",
			ObservedAt: now.Add(-time.Duration(g.rng.Intn(900)) * time.Second),
			Origin:     model.GeoPoint{Label: origin.label, Lat: jitter(g.rng, origin.lat), Lon: jitter(g.rng, origin.lon)},
			Target:     model.GeoPoint{Label: target.label, Lat: target.lat, Lon: target.lon},
		})
	}
	return events, nil
}

func (g *Generator) pickSeverity() string {
	total := 0
	for _, w := range severityWeights {
		total += w.weight
	}
	roll := g.rng.Intn(total)
	for _, w := range severityWeights {
		roll -= w.weight
		if roll < 0 {
			return w.severity
		}
	}
	return model.SeverityLow
}

// jitter nudges a coordinate by up to ±0.4° so repeated flows from the same
// hub do not stack pixel-perfect on the map.
func jitter(rng *rand.Rand, v float64) float64 {
	return v + (rng.Float64()-0.5)*0.8
}
