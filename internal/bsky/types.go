package bsky

// follow is one entry of an app.bsky.graph.getFollows page. The API returns
// full profile views; only the handle is needed here.
type follow struct {
	Handle string `json:"handle"`
}

// followsPage is the wire shape of app.bsky.graph.getFollows.
type followsPage struct {
	Follows []follow `json:"follows"`
	Cursor  string   `json:"cursor,omitempty"`
}

// profileView is the subset of app.bsky.actor.getProfile the analyzer reads.
type profileView struct {
	Handle         string `json:"handle"`
	FollowersCount int    `json:"followersCount"`
}

// InvalidHandle is the sentinel the AppView returns for accounts whose
// handle no longer resolves. Excluded from every snapshot.
const InvalidHandle = "handle.invalid"
