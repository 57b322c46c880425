// Package mqtt publishes instrument state onto an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The daemon uses MQTT as its outbound state bus: every observed feat
// change is published to lantz/state/{instrument}/{feat} as a retained
// message, so dashboards and loggers always see the latest value without
// polling the instruments.
//
//	lantz daemon → MQTT broker → dashboards, loggers, alerting
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Watch every feat change on the bus
//	err = client.Subscribe(mqtt.Topics{}.AllFeatStates(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Bind an instrument's changes to the bus
//	pub := mqtt.NewStatePublisher(client, byte(cfg.MQTT.QoS))
//	stop := pub.Watch(device)
//	defer stop()
package mqtt
