package mqtt311

// publishFlow drives a single PUBLISH exchange at any QoS level.
//
// QoS 0 completes on send. QoS 1 sends PUBLISH and waits for PUBACK.
// QoS 2 sends PUBLISH, answers PUBREC with PUBREL, and completes on
// PUBCOMP.
// MQTT v3.1.1 spec: Section 4.3
type publishFlow struct {
	packetID uint16
	msg      *Message

	// sentPubrel tracks progress through the QoS 2 exchange.
	sentPubrel bool
}

func newPublishFlow(msg *Message) FlowFactory {
	return func(packetID uint16) Flow {
		return &publishFlow{packetID: packetID, msg: msg}
	}
}

func (f *publishFlow) Start() (FlowStep, error) {
	pkt := &PublishPacket{}
	pkt.FromMessage(f.msg)
	if f.msg.QoS > 0 {
		pkt.ID = f.packetID
	}

	return FlowStep{Send: pkt, Done: f.msg.QoS == 0}, nil
}

func (f *publishFlow) Accept(pkt Packet) bool {
	switch p := pkt.(type) {
	case *PubackPacket:
		return f.msg.QoS == 1 && p.ID == f.packetID
	case *PubrecPacket:
		return f.msg.QoS == 2 && !f.sentPubrel && p.ID == f.packetID
	case *PubcompPacket:
		return f.msg.QoS == 2 && f.sentPubrel && p.ID == f.packetID
	}
	return false
}

func (f *publishFlow) Next(pkt Packet) (FlowStep, error) {
	switch pkt.(type) {
	case *PubackPacket:
		return FlowStep{Done: true}, nil
	case *PubrecPacket:
		f.sentPubrel = true
		return FlowStep{Send: &PubrelPacket{ID: f.packetID}}, nil
	case *PubcompPacket:
		return FlowStep{Done: true}, nil
	}
	return FlowStep{}, &UnexpectedPacketError{Type: pkt.Type()}
}
