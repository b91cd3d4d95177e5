package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Status retrieves the daemon runtime snapshot.
func (c *Client) Status() (*StatusResponse, error) {
	var resp StatusResponse
	if err := c.client.Call("Backer.Status", StatusRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stop asks the daemon process to shut down.
func (c *Client) Stop(force bool) (*StopResponse, error) {
	var resp StopResponse
	if err := c.client.Call("Backer.Stop", StopRequest{Force: force}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BackupNow queues an immediate backup sweep.
func (c *Client) BackupNow(filesystem string, force bool) (*BackupNowResponse, error) {
	var resp BackupNowResponse
	req := BackupNowRequest{Filesystem: filesystem, Force: force}
	if err := c.client.Call("Backer.BackupNow", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// IndexNow queues an immediate index republish.
func (c *Client) IndexNow(filesystem string) (*IndexNowResponse, error) {
	var resp IndexNowResponse
	req := IndexNowRequest{Filesystem: filesystem}
	if err := c.client.Call("Backer.IndexNow", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HistoryList returns recorded runs matching the request filter.
func (c *Client) HistoryList(req HistoryListRequest) (*HistoryListResponse, error) {
	var resp HistoryListResponse
	if err := c.client.Call("Backer.HistoryList", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LogTail returns log lines from the daemon.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	var resp LogTailResponse
	if err := c.client.Call("Backer.LogTail", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification() (*TestNotificationResponse, error) {
	var resp TestNotificationResponse
	if err := c.client.Call("Backer.TestNotification", TestNotificationRequest{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
