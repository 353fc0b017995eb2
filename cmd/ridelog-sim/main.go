// Command ridelog-sim publishes a synthetic ride to the event broker:
// a start command, a fix, interleaved sensor samples and location
// fixes along a jittered route, then a finish command. Useful for
// exercising ridelogd without a device.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var (
	broker     = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
	duration   = flag.Duration("duration", 30*time.Second, "Simulated ride duration")
	speed      = flag.Float64("speed", 8.0, "Ride speed in m/s")
	sensorRate = flag.Int("sensor-rate", 100, "Sensor samples per second")

	sensorTopic   = flag.String("sensor-topic", "ridelog/sensors", "Sensor event topic")
	locationTopic = flag.String("location-topic", "ridelog/locations", "Location event topic")
	statusTopic   = flag.String("status-topic", "ridelog/status", "Fix status event topic")
	controlTopic  = flag.String("control-topic", "ridelog/control", "Lifecycle control topic")
)

// Dresden Elbe cycle path, heading roughly north.
const (
	startLat = 51.0504
	startLon = 13.7373
)

func main() {
	flag.Parse()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(*broker)
	opts.SetClientID(fmt.Sprintf("ridelog-sim-%d", time.Now().Unix()))
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Fatal("MQTT connect timeout")
	}
	if token.Error() != nil {
		log.Fatalf("MQTT connect failed: %v", token.Error())
	}
	defer client.Disconnect(1000)

	log.Printf("Simulating a %s ride at %.1f m/s", *duration, *speed)

	publish(client, *controlTopic, map[string]any{"command": "start"})
	publish(client, *statusTopic, map[string]any{"event": "fix_acquired"})

	ticks := int(duration.Seconds())
	sampleInterval := time.Second / time.Duration(*sensorRate)
	lat, lon := startLat, startLon

	for tick := 0; tick < ticks; tick++ {
		for i := 0; i < *sensorRate; i++ {
			now := time.Now()
			publish(client, *sensorTopic, map[string]any{
				"kind":  "accelerometer",
				"x":     rand.NormFloat64() * 0.4,
				"y":     9.81 + rand.NormFloat64()*0.2,
				"z":     rand.NormFloat64() * 0.4,
				"ts_ns": now.UnixNano(),
			})
			publish(client, *sensorTopic, map[string]any{
				"kind":  "gyroscope",
				"x":     rand.NormFloat64() * 0.05,
				"y":     rand.NormFloat64() * 0.05,
				"z":     rand.NormFloat64() * 0.05,
				"ts_ns": now.UnixNano(),
			})
			time.Sleep(sampleInterval)
		}

		publish(client, *sensorTopic, map[string]any{
			"kind":     "barometer",
			"pressure": 1013.25 + rand.NormFloat64()*0.3,
			"ts_ns":    time.Now().UnixNano(),
		})

		lat, lon = step(lat, lon, *speed)
		publish(client, *locationTopic, map[string]any{
			"ts_ms": time.Now().UnixMilli(),
			"lat":   lat,
			"lon":   lon,
			"speed": *speed + rand.NormFloat64()*0.5,
			"h_acc": 3.0 + rand.Float64()*4.0,
		})
	}

	publish(client, *controlTopic, map[string]any{"command": "finish"})
	log.Printf("Ride complete: %d location fixes published", ticks)
}

// step advances the position by one second of travel heading north,
// with a little sideways jitter.
func step(lat, lon, metersPerSecond float64) (float64, float64) {
	latMetersPerDeg := 111320.0
	lonMetersPerDeg := 111320.0 * math.Cos(lat*math.Pi/180)
	lat += metersPerSecond / latMetersPerDeg
	lon += (rand.Float64()*2 - 1) * 0.5 / lonMetersPerDeg
	return lat, lon
}

func publish(client mqtt.Client, topic string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Fatalf("Failed to marshal payload: %v", err)
	}
	token := client.Publish(topic, 0, false, data)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("Publish timeout on %s", topic)
		return
	}
	if token.Error() != nil {
		log.Printf("Publish failed on %s: %v", topic, token.Error())
	}
}
