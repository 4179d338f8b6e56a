package searchindex

import "github.com/tinylib/msgp/msgp"

// Marshal encodes a TermIndex using the same hand-written msgp
// Append*/Read*Bytes approach archive.Envelope and changelog.Record use,
// since code generation cannot run in this environment.
func (ti *TermIndex) Marshal() []byte {
	b := msgp.AppendArrayHeader(nil, uint32(len(ti.Terms)))
	for _, t := range ti.Terms {
		b = msgp.AppendUint64(b, t.Hash)
		b = msgp.AppendUint32(b, t.FieldsBitmap)
	}
	b = msgp.AppendArrayHeader(b, uint32(len(ti.Fields)))
	for _, f := range ti.Fields {
		b = msgp.AppendUint8(b, uint8(f.Field))
		b = msgp.AppendBytes(b, f.Bytes)
	}
	return b
}

// UnmarshalTermIndex decodes a TermIndex encoded by Marshal.
func UnmarshalTermIndex(b []byte) (*TermIndex, error) {
	nTerms, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	ti := &TermIndex{Terms: make([]Term, 0, nTerms)}
	for i := uint32(0); i < nTerms; i++ {
		var h uint64
		var fb uint32
		h, b, err = msgp.ReadUint64Bytes(b)
		if err != nil {
			return nil, err
		}
		fb, b, err = msgp.ReadUint32Bytes(b)
		if err != nil {
			return nil, err
		}
		ti.Terms = append(ti.Terms, Term{Hash: h, FieldsBitmap: fb})
	}
	nFields, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, err
	}
	ti.Fields = make([]FieldValue, 0, nFields)
	for i := uint32(0); i < nFields; i++ {
		var id uint8
		var raw []byte
		id, b, err = msgp.ReadUint8Bytes(b)
		if err != nil {
			return nil, err
		}
		raw, b, err = msgp.ReadBytesBytes(b, nil)
		if err != nil {
			return nil, err
		}
		ti.Fields = append(ti.Fields, FieldValue{Field: FieldID(id), Bytes: raw})
	}
	return ti, nil
}
