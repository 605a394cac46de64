package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// routeEvent событие routecast-api о завершенной обработке маршрута
type routeEvent struct {
	RouteID     string    `json:"route_id"`
	Owner       string    `json:"owner"`
	Generation  uint64    `json:"generation"`
	Provider    string    `json:"provider"`
	Samples     int       `json:"samples"`
	Missing     int       `json:"missing"`
	DistanceM   float64   `json:"distance_m"`
	DurationSec float64   `json:"duration_s"`
	StartTime   time.Time `json:"start_time"`
	ProcessedAt time.Time `json:"processed_at"`
}

func main() {
	var (
		brokerURL = flag.String("broker", "tcp://localhost:1883", "MQTT broker URL")
		prefix    = flag.String("prefix", "routecast/routes", "Topic prefix used by the API")
		clientID  = flag.String("client-id", "routecast-listener", "MQTT client ID")
		username  = flag.String("username", "", "MQTT username")
		password  = flag.String("password", "", "MQTT password")
		raw       = flag.Bool("raw", false, "Print raw payloads")
	)
	flag.Parse()

	topic := strings.TrimSuffix(*prefix, "/") + "/+/processed"

	opts := mqtt.NewClientOptions().
		AddBroker(*brokerURL).
		SetClientID(*clientID).
		SetUsername(*username).
		SetPassword(*password).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		log.Printf("Connected to %s, subscribing to %s", *brokerURL, topic)
		token := c.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			if *raw {
				fmt.Printf("%s %s\n", msg.Topic(), msg.Payload())
				return
			}
			var evt routeEvent
			if err := json.Unmarshal(msg.Payload(), &evt); err != nil {
				log.Printf("Invalid payload on %s: %v", msg.Topic(), err)
				return
			}
			fmt.Printf("%s route=%s gen=%d provider=%s dist=%.1fkm duration=%s samples=%d missing=%d start=%s\n",
				evt.ProcessedAt.Format(time.RFC3339), evt.RouteID, evt.Generation, evt.Provider,
				evt.DistanceM/1000, (time.Duration(evt.DurationSec) * time.Second).String(),
				evt.Samples, evt.Missing, evt.StartTime.Format(time.RFC3339))
		})
		if token.Wait() && token.Error() != nil {
			log.Printf("Subscribe failed: %v", token.Error())
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("Connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("Failed to connect to MQTT broker: %v", token.Error())
	}
	defer client.Disconnect(250)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Println("Stopping listener")
}
