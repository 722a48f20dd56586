package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	baseURL := flag.String("base-url", "http://localhost:8081", "API base URL")
	source := flag.String("source", "", "run only the named source")
	skipDiscovery := flag.Bool("skip-discovery", false, "skip the discovery stage")
	wait := flag.Bool("wait", false, "poll the job until it finishes")
	flag.Parse()

	adminSecret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	if adminSecret == "" {
		fmt.Println("Missing ADMIN_SECRET environment variable")
		os.Exit(1)
	}

	runURL, err := url.Parse(strings.TrimRight(*baseURL, "/") + "/api/v1/admin/run")
	if err != nil {
		fmt.Printf("Bad base URL: %v\n", err)
		os.Exit(1)
	}
	q := runURL.Query()
	if *source != "" {
		q.Set("source", *source)
	}
	if *skipDiscovery {
		q.Set("skip_discovery", "true")
	}
	runURL.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodPost, runURL.String(), nil)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("X-Admin-Secret", adminSecret)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		os.Exit(1)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	fmt.Printf("Response Status: %s\n", resp.Status)
	fmt.Println(strings.TrimSpace(string(body)))
	if resp.StatusCode != http.StatusAccepted {
		os.Exit(1)
	}
	if !*wait {
		return
	}

	var started struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(body, &started); err != nil || started.JobID == "" {
		fmt.Println("No job id in response; cannot wait")
		os.Exit(1)
	}

	jobURL := strings.TrimRight(*baseURL, "/") + "/api/v1/admin/jobs/" + started.JobID
	for {
		time.Sleep(5 * time.Second)
		status, err := fetchJobStatus(client, jobURL, adminSecret)
		if err != nil {
			fmt.Printf("Error polling job: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Job %s: %s\n", started.JobID, status)
		if status == "running" {
			continue
		}
		if status != "completed" {
			os.Exit(1)
		}
		return
	}
}

func fetchJobStatus(client *http.Client, jobURL, adminSecret string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, jobURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("X-Admin-Secret", adminSecret)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %d", resp.StatusCode)
	}

	var job struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", err
	}
	if job.Error != "" {
		return fmt.Sprintf("%s (%s)", job.Status, job.Error), nil
	}
	return job.Status, nil
}
