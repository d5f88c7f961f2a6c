// Command worker is a stand-in automation worker for local development.
// It accepts dispatches from the relay, simulates a multi-step task, and
// reports progress back through the callback endpoint, so the whole
// submit → stream loop can run without the real automation platform.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-resty/resty/v2"
	"github.com/mizuki/formflow/internal/domain"
	"github.com/mizuki/formflow/internal/logger"
)

type dispatch struct {
	JobID   string         `json:"jobId"`
	Payload domain.JSONMap `json:"payload"`
}

type callbackBody struct {
	JobID    string         `json:"jobId"`
	Status   string         `json:"status,omitempty"`
	Progress *int           `json:"progress,omitempty"`
	Message  string         `json:"message,omitempty"`
	Result   domain.JSONMap `json:"result,omitempty"`
	Error    string         `json:"error,omitempty"`
	Secret   string         `json:"secret,omitempty"`
}

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "formflow-worker",
	})
	logger.SetDefaultLogger(appLogger)

	port := flag.Int("port", 9090, "Port to listen on for dispatches")
	callbackURL := flag.String("callback", "http://localhost:8080/api/v1/callback", "Relay callback endpoint")
	secret := flag.String("secret", "", "Shared callback secret")
	stepDelay := flag.Duration("delay", 2*time.Second, "Delay between simulated steps")
	flag.Parse()

	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(10 * time.Second)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/hook", func(c *gin.Context) {
		var d dispatch
		if err := c.ShouldBindJSON(&d); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if d.JobID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "jobId is required"})
			return
		}

		logger.Info("Dispatch accepted: job_id=%s", d.JobID)
		go simulate(client, *callbackURL, *secret, d, *stepDelay)

		c.JSON(http.StatusOK, gin.H{"accepted": true})
	})

	logger.Info("Worker listening on :%d", *port)
	if err := r.Run(fmt.Sprintf(":%d", *port)); err != nil {
		logger.Fatal("Worker failed: %v", err)
	}
}

// simulate plays a scripted task: running, three progress steps, done.
func simulate(client *resty.Client, callbackURL, secret string, d dispatch, delay time.Duration) {
	steps := []struct {
		progress int
		message  string
	}{
		{10, "Validating submission"},
		{40, "Enriching company data"},
		{75, "Generating summary"},
	}

	post := func(body callbackBody) {
		body.JobID = d.JobID
		body.Secret = secret
		resp, err := client.R().SetBody(body).Post(callbackURL)
		if err != nil {
			logger.Error("Callback failed: job_id=%s, err=%v", d.JobID, err)
			return
		}
		if resp.IsError() {
			logger.Error("Callback rejected: job_id=%s, status=%d", d.JobID, resp.StatusCode())
		}
	}

	for i, step := range steps {
		status := ""
		if i == 0 {
			status = string(domain.JobStatusRunning)
		}
		p := step.progress
		post(callbackBody{Status: status, Progress: &p, Message: step.message})
		time.Sleep(delay)
	}

	done := 100
	post(callbackBody{
		Status:   string(domain.JobStatusDone),
		Progress: &done,
		Message:  "Finished",
		Result: domain.JSONMap{
			"summary":     "ok",
			"received":    d.Payload,
			"processedAt": time.Now().UTC().Format(time.RFC3339),
		},
	})
	logger.Info("Simulated task finished: job_id=%s", d.JobID)
}
