package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/punchamoorthee/promoledger/internal/ledger"
	log "github.com/sirupsen/logrus"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	codes       int
	useTokens   bool
)

// Metrics
var (
	totalRequests uint64
	success201    uint64
	fail422       uint64
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&codes, "codes", 100, "Number of seeded promo codes (SEED0001..)")
	flag.BoolVar(&useTokens, "tokens", false, "Send referral tokens instead of promo codes")
}

func main() {
	flag.Parse()
	log.Infof("Starting signup benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(i, &wg, start)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(id int, wg *sync.WaitGroup, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}

	for n := 0; time.Since(start) < duration; n++ {
		payload := map[string]string{
			"full_name": fmt.Sprintf("Bench %d-%d", id, n),
			"email":     fmt.Sprintf("bench%d.%d@load.local", id, n),
		}
		code := pickCode()
		if useTokens {
			payload["ref"] = ledger.EncodeReferralToken(code)
		} else {
			payload["promo_code"] = code
		}
		body, _ := json.Marshal(payload)

		req, _ := http.NewRequest("POST", targetURL+"/api/v1/signups", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddUint64(&failOther, 1)
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusCreated:
			atomic.AddUint64(&success201, 1)
		case http.StatusUnprocessableEntity:
			atomic.AddUint64(&fail422, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
}

// pickCode returns a seeded promo code. The hotspot workload sends 90% of
// traffic to the first code.
func pickCode() string {
	if workload == "hotspot" && rand.Float32() < 0.90 {
		return "SEED0001"
	}
	return fmt.Sprintf("SEED%04d", rand.Intn(codes)+1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	s201 := atomic.LoadUint64(&success201)
	f422 := atomic.LoadUint64(&fail422)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	rejectRate := 0.0
	if total > 0 {
		rejectRate = float64(f422) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workload":         workload,
		"referral_tokens":  useTokens,
		"duration_sec":     d.Seconds(),
		"total_requests":   total,
		"throughput_tps":   tps,
		"signups_created":  s201,
		"rejected_invalid": f422,
		"reject_rate_pct":  rejectRate,
		"errors":           fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	filename := fmt.Sprintf("results_%s.json", workload)
	file, err := os.Create(filename)
	if err != nil {
		log.WithError(err).Warn("Could not save results file")
		return
	}
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
