package cleanup

func (d *DNSFlusher) SetNative(fn func() bool) {
	d.native = fn
}
