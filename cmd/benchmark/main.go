// Benchmark tool for load-testing the Kestrel compute path with synthetic
// spend data.
//
// Usage:
//   go run cmd/benchmark/main.go -url http://localhost:8080
//
// This tool:
//   1. Declares a benchmark card rule set over the API
//   2. Generates synthetic monthly spend batches across the category taxonomy
//   3. Sends each batch to POST /rewards/compute as ad-hoc transactions
//   4. Reports throughput, latency percentiles and reward totals
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Transaction mirrors the API transaction shape.
type Transaction struct {
	ID       string `json:"id"`
	CardID   string `json:"cardId"`
	Date     string `json:"date"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Type     string `json:"type"`
	Merchant string `json:"merchant"`
	Category string `json:"spendCategory"`
}

// Period mirrors the API period window shape.
type Period struct {
	Type  string `json:"type"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// ComputeRequest is the Kestrel compute request format.
type ComputeRequest struct {
	CardID       string        `json:"cardId"`
	Period       Period        `json:"period"`
	Transactions []Transaction `json:"transactions"`
}

// ComputeResponse is the slice of the compute response the benchmark reads.
type ComputeResponse struct {
	PeriodSummary struct {
		TotalReward int64 `json:"totalReward"`
		CapsHit     []struct {
			OverCap int64 `json:"overCap"`
		} `json:"capsHit"`
		MilestonesTriggered []struct {
			Crossed bool `json:"crossed"`
		} `json:"milestonesTriggered"`
	} `json:"periodSummary"`
}

// Rule mirrors the API reward rule shape.
type Rule struct {
	Kind        string  `json:"type"`
	Category    string  `json:"category,omitempty"`
	RatePer100  float64 `json:"ratePer100,omitempty"`
	MaxUnits    int64   `json:"maxUnits,omitempty"`
	Period      string  `json:"period,omitempty"`
	Threshold   int64   `json:"threshold,omitempty"`
	RewardUnits int64   `json:"rewardUnits,omitempty"`
}

// Metrics tracks benchmark results
type Metrics struct {
	TotalBatches    int64
	TotalTxs        int64
	TotalErrors     int64
	TotalReward     int64
	BatchesWithCaps int64
	BatchesWithMile int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) record(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

var categories = []string{
	"dining", "groceries", "fuel", "travel", "online_shopping",
	"utilities", "entertainment", "other",
}

var merchants = map[string][]string{
	"dining":          {"Swiggy", "Zomato", "Cafe Madras"},
	"groceries":       {"BigBasket", "DMart", "Blinkit"},
	"fuel":            {"Indian Oil", "HPCL"},
	"travel":          {"IRCTC", "MakeMyTrip", "Uber"},
	"online_shopping": {"Amazon", "Flipkart", "Myntra"},
	"utilities":       {"BESCOM", "Airtel"},
	"entertainment":   {"BookMyShow", "Netflix"},
	"other":           {"Misc Retail"},
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	userID := flag.String("user", "benchmark-user", "User ID for requests")
	cardID := flag.String("card", "benchmark-card", "Card ID for the rule set")
	batches := flag.Int("batches", 1000, "Number of compute batches to send")
	batchSize := flag.Int("batch-size", 50, "Transactions per batch")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", 42, "Random seed for synthetic data")
	verbose := flag.Bool("verbose", false, "Print each batch result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║       KESTREL BENCHMARK - Synthetic Rewards Computation       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("User ID:     %s\n", *userID)
	fmt.Printf("Card ID:     %s\n", *cardID)
	fmt.Printf("Batches:     %d x %d transactions\n", *batches, *batchSize)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Seed:        %d\n", *seed)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	if err := declareRuleSet(*baseURL, *userID, *cardID); err != nil {
		fmt.Printf("ERROR: Failed to declare benchmark rule set: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Rule set declared for %s\n", *cardID)

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(*baseURL, *userID, *cardID, *batches, *batchSize, *workers, *seed, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// declareRuleSet installs a representative rule set: tiered category rates,
// one exclusion, a monthly category cap and a spend milestone.
func declareRuleSet(baseURL, userID, cardID string) error {
	payload := map[string]any{
		"rules": []Rule{
			{Kind: "category_rate", Category: "dining", RatePer100: 5},
			{Kind: "category_rate", Category: "groceries", RatePer100: 3},
			{Kind: "category_rate", Category: "travel", RatePer100: 3},
			{Kind: "category_rate", Category: "online_shopping", RatePer100: 2},
			{Kind: "category_rate", Category: "other", RatePer100: 1},
			{Kind: "exclusion", Category: "fuel"},
			{Kind: "cap", Category: "dining", MaxUnits: 2000, Period: "monthly"},
			{Kind: "milestone", Threshold: 100000, Period: "monthly", RewardUnits: 1000},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPut, baseURL+"/rule-sets/"+cardID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// syntheticBatch builds one month of spend for the benchmark card. Amounts
// are in minor units (paise).
func syntheticBatch(rng *rand.Rand, cardID string, batch, size int) ([]Transaction, Period) {
	month := batch%12 + 1
	period := Period{
		Type:  "monthly",
		Start: fmt.Sprintf("2025-%02d-01", month),
		End:   fmt.Sprintf("2025-%02d-28", month),
	}

	txs := make([]Transaction, 0, size)
	for i := 0; i < size; i++ {
		cat := categories[rng.Intn(len(categories))]
		names := merchants[cat]
		txType := "credit"
		if rng.Intn(20) == 0 {
			txType = "debit"
		}
		txs = append(txs, Transaction{
			ID:       fmt.Sprintf("bench-%d-%d", batch, i),
			CardID:   cardID,
			Date:     fmt.Sprintf("2025-%02d-%02d", month, rng.Intn(28)+1),
			Amount:   int64(rng.Intn(500000) + 1000),
			Currency: "INR",
			Type:     txType,
			Merchant: names[rng.Intn(len(names))],
			Category: cat,
		})
	}
	return txs, period
}

func runBenchmark(baseURL, userID, cardID string, batches, batchSize, numWorkers int, seed int64, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan int, 100)
	var wg sync.WaitGroup

	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			// Per-worker RNG so workers never contend on a shared source
			rng := rand.New(rand.NewSource(seed + int64(workerID)))

			for batch := range work {
				txs, period := syntheticBatch(rng, cardID, batch, batchSize)

				start := time.Now()
				result, err := computeBatch(client, baseURL, userID, cardID, period, txs)
				elapsed := time.Since(start)

				metrics.record(elapsed)
				atomic.AddInt64(&metrics.TotalBatches, 1)
				atomic.AddInt64(&metrics.TotalTxs, int64(len(txs)))

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: batch %d -> %v\n", batch, err)
					}
					continue
				}

				summary := result.PeriodSummary
				atomic.AddInt64(&metrics.TotalReward, summary.TotalReward)

				capsExceeded := 0
				for _, c := range summary.CapsHit {
					if c.OverCap > 0 {
						capsExceeded++
					}
				}
				milesCrossed := 0
				for _, m := range summary.MilestonesTriggered {
					if m.Crossed {
						milesCrossed++
					}
				}
				if capsExceeded > 0 {
					atomic.AddInt64(&metrics.BatchesWithCaps, 1)
				}
				if milesCrossed > 0 {
					atomic.AddInt64(&metrics.BatchesWithMile, 1)
				}

				if verbose {
					fmt.Printf("✓ batch %-5d | %s..%s | reward: %8d | caps: %d | milestones: %d | %v\n",
						batch,
						period.Start,
						period.End,
						summary.TotalReward,
						capsExceeded,
						milesCrossed,
						elapsed.Round(time.Millisecond),
					)
				}
			}
		}(w)
	}

	for batch := 0; batch < batches; batch++ {
		work <- batch
	}
	close(work)

	wg.Wait()

	return metrics
}

func computeBatch(client *http.Client, baseURL, userID, cardID string, period Period, txs []Transaction) (*ComputeResponse, error) {
	req := ComputeRequest{
		CardID:       cardID,
		Period:       period,
		Transactions: txs,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/rewards/compute", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", userID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result ComputeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 WORKLOAD\n")
	fmt.Printf("   Batches Sent:      %d\n", m.TotalBatches)
	fmt.Printf("   Transactions:      %d\n", m.TotalTxs)
	fmt.Printf("   Errors:            %d\n", m.TotalErrors)

	fmt.Printf("\n💳 REWARDS\n")
	fmt.Printf("   Total Reward:      %d units\n", m.TotalReward)
	fmt.Printf("   Batches w/ Caps:   %d\n", m.BatchesWithCaps)
	fmt.Printf("   Batches w/ Miles:  %d\n", m.BatchesWithMile)

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:    %v\n", duration.Round(time.Millisecond))
	if len(sorted) > 0 {
		var total time.Duration
		for _, d := range sorted {
			total += d
		}
		fmt.Printf("   Avg Latency:       %v\n", (total / time.Duration(len(sorted))).Round(time.Microsecond))
		fmt.Printf("   p50 Latency:       %v\n", percentile(sorted, 0.50).Round(time.Microsecond))
		fmt.Printf("   p95 Latency:       %v\n", percentile(sorted, 0.95).Round(time.Microsecond))
		fmt.Printf("   p99 Latency:       %v\n", percentile(sorted, 0.99).Round(time.Microsecond))
	}
	if m.TotalBatches > 0 {
		fmt.Printf("   Throughput:        %.2f batches/sec (%.0f tx/sec)\n",
			float64(m.TotalBatches)/duration.Seconds(),
			float64(m.TotalTxs)/duration.Seconds(),
		)
	}

	fmt.Println()
}
