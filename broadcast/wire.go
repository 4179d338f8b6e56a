package broadcast

import "github.com/tinylib/msgp/msgp"

// Marshal encodes a Batch with msgp's primitive append helpers directly,
// the same no-codegen approach archive.Envelope and changelog.Record use.
func (b *Batch) Marshal() []byte {
	buf := msgp.AppendUint64(nil, b.NodeID)
	buf = msgp.AppendArrayHeader(buf, uint32(len(b.Events)))
	for _, e := range b.Events {
		buf = msgp.AppendUint8(buf, uint8(e.Kind))
		buf = msgp.AppendUint32(buf, e.AccountID)
		buf = msgp.AppendArrayHeader(buf, uint32(len(e.IDs)))
		for _, id := range e.IDs {
			buf = msgp.AppendUint32(buf, id)
		}
		buf = msgp.AppendBytes(buf, e.Payload)
	}
	return buf
}

// Unmarshal decodes a Batch. Unknown EventKind values are preserved
// verbatim (not rejected) so an older subscriber can skip events a newer
// publisher added, per spec.md §9's add-only compatibility rule.
func Unmarshal(data []byte) (*Batch, error) {
	nodeID, rest, err := msgp.ReadUint64Bytes(data)
	if err != nil {
		return nil, err
	}
	n, rest, err := msgp.ReadArrayHeaderBytes(rest)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, n)
	for i := uint32(0); i < n; i++ {
		var e Event
		var kind uint8
		kind, rest, err = msgp.ReadUint8Bytes(rest)
		if err != nil {
			return nil, err
		}
		e.Kind = EventKind(kind)
		e.AccountID, rest, err = msgp.ReadUint32Bytes(rest)
		if err != nil {
			return nil, err
		}
		var nIDs uint32
		nIDs, rest, err = msgp.ReadArrayHeaderBytes(rest)
		if err != nil {
			return nil, err
		}
		if nIDs > 0 {
			e.IDs = make([]uint32, 0, nIDs)
		}
		for j := uint32(0); j < nIDs; j++ {
			var id uint32
			id, rest, err = msgp.ReadUint32Bytes(rest)
			if err != nil {
				return nil, err
			}
			e.IDs = append(e.IDs, id)
		}
		e.Payload, rest, err = msgp.ReadBytesBytes(rest, nil)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return &Batch{NodeID: nodeID, Events: events}, nil
}
