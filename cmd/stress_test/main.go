package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rl1809/general-store/internal/adapter/handler"
	"github.com/rl1809/general-store/internal/core/domain"
)

// Fires concurrent POST /transactions at one product of a running server and
// checks that the inventory dropped by exactly the accepted item counts.
func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	customerID := flag.Int64("customer", 1, "customer id")
	productID := flag.Int64("product", 1, "product id")
	totalRequests := flag.Int("requests", 50, "number of concurrent requests")
	itemCount := flag.Int("items", 1, "item count per transaction")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	before, err := fetchProduct(client, *baseURL, *productID)
	if err != nil {
		log.Fatalf("failed to read product: %v", err)
	}

	// Counters
	var successCount atomic.Int32
	var rejectedCount atomic.Int32
	var conflictCount atomic.Int32
	var errorCount atomic.Int32

	// Spawn concurrent requests
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			status, err := postTransaction(client, *baseURL, handler.TransactionHTTPRequest{
				CustomerID: *customerID,
				ProductID:  *productID,
				ItemCount:  *itemCount,
			})
			switch {
			case err != nil:
				errorCount.Add(1)
			case status == http.StatusOK:
				successCount.Add(1)
			case status == http.StatusConflict:
				conflictCount.Add(1)
			case status == http.StatusBadRequest:
				rejectedCount.Add(1)
			default:
				errorCount.Add(1)
			}
		}()
	}

	wg.Wait()
	elapsed := time.Since(start)

	after, err := fetchProduct(client, *baseURL, *productID)
	if err != nil {
		log.Fatalf("failed to read product: %v", err)
	}

	// Results
	success := int(successCount.Load())
	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Inventory: %d\n", before.NumberInInventory)
	fmt.Printf("Total Requests:    %d\n", *totalRequests)
	fmt.Printf("Successful:        %d\n", success)
	fmt.Printf("Out of stock:      %d\n", rejectedCount.Load())
	fmt.Printf("Conflicts:         %d\n", conflictCount.Load())
	fmt.Printf("Errors:            %d\n", errorCount.Load())
	fmt.Printf("Duration:          %v\n", elapsed)
	fmt.Printf("Final Inventory:   %d\n", after.NumberInInventory)
	fmt.Println("==========================================")

	expected := before.NumberInInventory - success*(*itemCount)
	if after.NumberInInventory == expected && after.NumberInInventory >= 0 {
		fmt.Println("PASS: inventory matches accepted transactions")
	} else {
		fmt.Printf("FAIL: expected inventory %d, got %d\n", expected, after.NumberInInventory)
	}
}

func postTransaction(client *http.Client, baseURL string, req handler.TransactionHTTPRequest) (int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/transactions", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(handler.IdempotencyKeyHeader, uuid.NewString())

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func fetchProduct(client *http.Client, baseURL string, id int64) (domain.ProductView, error) {
	resp, err := client.Get(fmt.Sprintf("%s/products/%d", baseURL, id))
	if err != nil {
		return domain.ProductView{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.ProductView{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var product domain.ProductView
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return domain.ProductView{}, err
	}
	return product, nil
}
