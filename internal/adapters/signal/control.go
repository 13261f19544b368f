package signal

var pingFrame = []byte(`{"type":"ping"}`)

func (c *Client) Join(token *string, name string) error {
	return c.Send(JoinRequest{Type: TypeJoin, Token: token, Name: name})
}

func (c *Client) Leave() error {
	return c.Send(struct {
		Type string `json:"type"`
	}{Type: TypeLeave})
}
