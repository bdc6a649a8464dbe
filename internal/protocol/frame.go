package protocol

import "bytes"

// tagsByLength lists recognized tags ordered longest-first so that, e.g.,
// "RPTCL" is matched before its shorter prefix "RPTC".
var tagsByLength = []string{
	TagRPTSBKN,
	TagRPTPING,
	TagMSTPING,
	TagMSTPONG,
	TagMSTNAK,
	TagRPTACK,
	TagRPTCL,
	TagMSTCL,
	TagDMRD,
	TagRPTL,
	TagRPTK,
	TagRPTC,
	TagRPTO,
}

// DetectTag returns the recognized frame tag at the start of data, or "" if
// none match.
func DetectTag(data []byte) string {
	for _, tag := range tagsByLength {
		if len(data) >= len(tag) && bytes.Equal(data[:len(tag)], []byte(tag)) {
			return tag
		}
	}
	return ""
}
