package event

import (
	"fmt"
	"math/rand"
)

var sampleTypes = []string{"user_login", "purchase", "page_view", "error", "api_call"}

// Sample generates a realistic demo event. Used by the example programs and
// handy for load tests.
func Sample() Event {
	e := New(sampleTypes[rand.Intn(len(sampleTypes))])
	e.UserID = fmt.Sprintf("user_%03d", rand.Intn(100)+1)
	e.Payload = map[string]any{
		"session_id": fmt.Sprintf("sess_%d", rand.Intn(9000)+1000),
		"ip_address": fmt.Sprintf("192.168.%d.%d", rand.Intn(255)+1, rand.Intn(255)+1),
		"user_agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
		"page_url":   fmt.Sprintf("https://example.com/page/%d", rand.Intn(50)+1),
		"value":      10.0 + rand.Float64()*990.0,
	}
	e.Metadata = Metadata{
		Source:      "eventstream-sample",
		Version:     "1.0.0",
		Environment: "development",
	}
	return e
}
