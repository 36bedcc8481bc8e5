// Package mqtt311 provides an MQTT 3.1.1 client engine.
//
// This package implements the MQTT Version 3.1.1 OASIS Standard:
// https://docs.oasis-open.org/mqtt/mqtt/v3.1.1/mqtt-v3.1.1.html
//
// # Features
//
//   - All 14 MQTT 3.1.1 control packet types
//   - QoS 0, 1, 2 message exchanges modeled as flows
//   - A flow multiplexer sharing one wire between concurrent exchanges
//   - Topic matching with wildcard support (+, #)
//   - Keep-alive with missed-response detection
//   - Pluggable reconnection strategies
//   - Transport: TCP, TLS, WebSocket, WSS, QUIC, proxied connections
//
// # Packet Types
//
// The package provides structs for all MQTT 3.1.1 control packets:
//
//   - ConnectPacket, ConnackPacket: Connection establishment
//   - PublishPacket, PubackPacket, PubrecPacket, PubrelPacket, PubcompPacket: Message delivery
//   - SubscribePacket, SubackPacket: Topic subscription
//   - UnsubscribePacket, UnsubackPacket: Topic unsubscription
//   - PingreqPacket, PingrespPacket: Keep-alive
//   - DisconnectPacket: Connection termination
//
// Use ReadPacket and WritePacket to read/write packets from/to connections:
//
//	// Read a packet
//	pkt, n, err := mqtt311.ReadPacket(conn, maxPacketSize)
//
//	// Write a packet
//	n, err := mqtt311.WritePacket(conn, packet)
//
// # Client
//
// Use the high-level Client API for connecting to MQTT brokers:
//
//	client := mqtt311.New(
//	    mqtt311.WithServer("tcp://localhost:1883"),
//	    mqtt311.WithClientID("my-client"),
//	)
//	if err := client.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Incoming messages are delivered to listeners registered with Listen. A
// listener survives reconnects; it is matched against the topic of every
// inbound PUBLISH using standard MQTT filter semantics:
//
//	client.Listen("sensors/+/temperature", func(msg *mqtt311.Message) {
//	    fmt.Println(msg.Topic, string(msg.Payload))
//	})
//
// Any multi-step exchange on the wire is a Flow. The built-in publish,
// subscribe and ping exchanges are flows, and StartFlow accepts custom ones.
package mqtt311
