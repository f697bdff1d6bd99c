package internal

// IsChannelClosed returns true if the channel is closed.
// It panics if a value was sent to the channel, it must be used only for channels which are closed to signal.
func IsChannelClosed(channel <-chan struct{}) bool {
	select {
	case _, ok := <-channel:
		if ok {
			panic("received unexpected value")
		}
		return true
	default:
		return false
	}
}
