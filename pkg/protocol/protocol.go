// Package protocol names the wire protocols an upstream may speak.
// Serialization is handled elsewhere; the gateway only uses the variant to
// pick a default Content-Type.
package protocol

import (
	"fmt"
	"strings"
)

type Protocol int

const (
	Unspecified Protocol = iota
	AwsJSON10
	AwsJSON11
	RestJSON1
	RestXML
)

var names = map[Protocol]string{
	AwsJSON10: "awsJson1_0",
	AwsJSON11: "awsJson1_1",
	RestJSON1: "restJson1",
	RestXML:   "restXml",
}

func (p Protocol) String() string {
	if n, ok := names[p]; ok {
		return n
	}
	return "unspecified"
}

// ContentType is the request Content-Type the protocol expects.
func (p Protocol) ContentType() string {
	switch p {
	case AwsJSON10:
		return "application/x-amz-json-1.0"
	case AwsJSON11:
		return "application/x-amz-json-1.1"
	case RestJSON1:
		return "application/json"
	case RestXML:
		return "application/xml"
	default:
		return ""
	}
}

// Parse accepts the canonical names case-insensitively, plus a few aliases
// used in config files (aws_json_10, rest_json_1, ...).
func Parse(s string) (Protocol, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "", "-", "", ".", "").Replace(key)
	switch key {
	case "":
		return Unspecified, nil
	case "awsjson10":
		return AwsJSON10, nil
	case "awsjson11":
		return AwsJSON11, nil
	case "restjson1", "restjson":
		return RestJSON1, nil
	case "restxml":
		return RestXML, nil
	}
	return Unspecified, fmt.Errorf("unknown protocol %q", s)
}
