package metrics

const (
	labelKeyEndpointName = "endpoint_name"
	labelKeyChannelName  = "channel"
	labelSuccess         = "success"
	labelAccepted        = "accepted"

	labelValueNoName = "<unnamed>"
)

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
