package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	AttrPartition  = attribute.Key("stream.partition")
	AttrGroup      = attribute.Key("stream.group")
	AttrSendStatus = attribute.Key("stream.send.status")
)

// Send status values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)
