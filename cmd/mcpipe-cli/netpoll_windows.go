package main

import "github.com/pior/mcpipe/transport"

func newNetpollDialer() transport.Dialer {
	return transport.NetDialer{}
}
