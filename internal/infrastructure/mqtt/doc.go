// Package mqtt provides MQTT broker connectivity for the HVAC service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions that are restored after a reconnect
//   - Last Will and Testament (LWT) for offline detection
//   - Topic builders for the service's topic tree
//
// # Architecture
//
// The broker is the home-automation facing side of the service. Entity state
// is published retained so that dashboards see the current state on
// subscribe; commands arrive on command topics and are acknowledged per
// request id.
//
//	SC-SL4 controller ↔ mhihvac ↔ MQTT broker ↔ home automation
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        name, _ := topics.CommandName(topic)
//	        log.Printf("command %s: %s", name, payload)
//	        return nil
//	    })
//
//	client.PublishJSON(topics.EntityState("1-03"), view, true)
package mqtt
