package telemetry

import "github.com/golang/protobuf/proto"

// Envelope mirrors telemetry.proto, keep field tags in sync.
type Envelope struct {
	SchemaVersion        uint32    `protobuf:"varint,1,opt,name=schema_version,json=schemaVersion,proto3" json:"schema_version,omitempty"`
	Layout               uint32    `protobuf:"varint,2,opt,name=layout,proto3" json:"layout,omitempty"`
	Topic                string    `protobuf:"bytes,3,opt,name=topic,proto3" json:"topic,omitempty"`
	TimeUsec             uint64    `protobuf:"varint,4,opt,name=time_usec,json=timeUsec,proto3" json:"time_usec,omitempty"`
	Values               []float64 `protobuf:"fixed64,5,rep,packed,name=values,proto3" json:"values,omitempty"`
	XXX_NoUnkeyedLiteral struct{}  `json:"-"`
	XXX_unrecognized     []byte    `json:"-"`
	XXX_sizecache        int32     `json:"-"`
}

func (m *Envelope) Reset()         { *m = Envelope{} }
func (m *Envelope) String() string { return proto.CompactTextString(m) }
func (*Envelope) ProtoMessage()    {}

func init() {
	proto.RegisterType((*Envelope)(nil), "mavbridge.telemetry.Envelope")
}
