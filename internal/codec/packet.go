package codec

// Packet is one unit of compressed input. Data is immutable once submitted;
// packets share storage by reference.
type Packet struct {
	Data []byte
	PTS  int64
	DTS  int64

	// Opaque carries caller-defined payload alongside the packet.
	Opaque any
}

// Size returns the payload length. An empty packet signals end of stream.
func (p *Packet) Size() int { return len(p.Data) }

// Ref makes p reference src's payload and metadata.
func (p *Packet) Ref(src *Packet) error {
	*p = *src
	return nil
}

// Unref resets the packet to a blank state.
func (p *Packet) Unref() {
	*p = Packet{}
}
