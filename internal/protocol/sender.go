package protocol

import "github.com/sirupsen/logrus"

// Transport is where encoded frames go.
type Transport interface {
	Send(payload string) error
}

// Sender is the outbound settings path: debounce, encode, transmit.
type Sender struct {
	codec     *Codec
	debouncer *Debouncer
	transport Transport
	log       logrus.FieldLogger
}

// NewSender wires a codec and debouncer in front of transport.
func NewSender(codec *Codec, debouncer *Debouncer, transport Transport, log logrus.FieldLogger) *Sender {
	return &Sender{codec: codec, debouncer: debouncer, transport: transport, log: log}
}

// SendSettings transmits rec unless it is debounced and too soon after the previous
// frame. It reports whether a frame was handed to the transport and the transport's error.
func (s *Sender) SendSettings(rec Settings, debounced bool) (bool, error) {
	if !s.debouncer.Allow(debounced) {
		s.log.Debug("debounced frame dropped")
		return false, nil
	}
	line := s.codec.Encode(rec)
	if err := s.transport.Send(line); err != nil {
		return true, err
	}
	s.log.Debugf("sent: %s", line)
	return true, nil
}

// Codec exposes the codec used for encoding.
func (s *Sender) Codec() *Codec {
	return s.codec
}
