package mqtt311

import "fmt"

// ErrReturnCodeMismatch is returned when a SUBACK carries a different
// number of return codes than the SUBSCRIBE had subscriptions.
var ErrReturnCodeMismatch = fmt.Errorf("%w: SUBACK return code count mismatch", ErrProtocolViolation)

// subscribeFlow drives a SUBSCRIBE/SUBACK exchange. Its terminal value is
// the granted QoS list, one byte per requested filter, in request order.
// MQTT v3.1.1 spec: Section 3.8
type subscribeFlow struct {
	packetID      uint16
	subscriptions []Subscription
}

func newSubscribeFlow(subscriptions []Subscription) FlowFactory {
	return func(packetID uint16) Flow {
		return &subscribeFlow{packetID: packetID, subscriptions: subscriptions}
	}
}

func (f *subscribeFlow) Start() (FlowStep, error) {
	return FlowStep{Send: &SubscribePacket{
		ID:            f.packetID,
		Subscriptions: f.subscriptions,
	}}, nil
}

func (f *subscribeFlow) Accept(pkt Packet) bool {
	p, ok := pkt.(*SubackPacket)
	return ok && p.ID == f.packetID
}

func (f *subscribeFlow) Next(pkt Packet) (FlowStep, error) {
	p, ok := pkt.(*SubackPacket)
	if !ok {
		return FlowStep{}, &UnexpectedPacketError{Type: pkt.Type()}
	}

	if len(p.ReturnCodes) != len(f.subscriptions) {
		return FlowStep{}, ErrReturnCodeMismatch
	}

	return FlowStep{Done: true, Value: p.ReturnCodes}, nil
}

// unsubscribeFlow drives an UNSUBSCRIBE/UNSUBACK exchange.
// MQTT v3.1.1 spec: Section 3.10
type unsubscribeFlow struct {
	packetID uint16
	filters  []string
}

func newUnsubscribeFlow(filters []string) FlowFactory {
	return func(packetID uint16) Flow {
		return &unsubscribeFlow{packetID: packetID, filters: filters}
	}
}

func (f *unsubscribeFlow) Start() (FlowStep, error) {
	return FlowStep{Send: &UnsubscribePacket{
		ID:           f.packetID,
		TopicFilters: f.filters,
	}}, nil
}

func (f *unsubscribeFlow) Accept(pkt Packet) bool {
	p, ok := pkt.(*UnsubackPacket)
	return ok && p.ID == f.packetID
}

func (f *unsubscribeFlow) Next(pkt Packet) (FlowStep, error) {
	if _, ok := pkt.(*UnsubackPacket); !ok {
		return FlowStep{}, &UnexpectedPacketError{Type: pkt.Type()}
	}
	return FlowStep{Done: true}, nil
}
