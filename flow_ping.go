package mqtt311

// pingFlow drives a PINGREQ/PINGRESP exchange. PINGRESP carries no packet
// identifier, so the flow accepts any PINGRESP; the multiplexer's
// insertion-order routing hands it to the oldest outstanding ping.
// MQTT v3.1.1 spec: Section 3.12
type pingFlow struct{}

func newPingFlow() FlowFactory {
	return func(uint16) Flow {
		return &pingFlow{}
	}
}

func (f *pingFlow) Start() (FlowStep, error) {
	return FlowStep{Send: &PingreqPacket{}}, nil
}

func (f *pingFlow) Accept(pkt Packet) bool {
	_, ok := pkt.(*PingrespPacket)
	return ok
}

func (f *pingFlow) Next(pkt Packet) (FlowStep, error) {
	if _, ok := pkt.(*PingrespPacket); !ok {
		return FlowStep{}, &UnexpectedPacketError{Type: pkt.Type()}
	}
	return FlowStep{Done: true}, nil
}
