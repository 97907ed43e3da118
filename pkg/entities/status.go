package entities

import "time"

// Visibility controls who can see a status.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
	VisibilityDirect   Visibility = "direct"
)

// Status is a post.
type Status struct {
	ID                 string       `json:"id"`
	URI                string       `json:"uri"`
	URL                *string      `json:"url"`
	CreatedAt          time.Time    `json:"created_at"`
	Account            Account      `json:"account"`
	Content            string       `json:"content"` // sanitized HTML
	Visibility         Visibility   `json:"visibility"`
	Sensitive          bool         `json:"sensitive"`
	SpoilerText        string       `json:"spoiler_text"`
	MediaAttachments   []Attachment `json:"media_attachments"`
	Application        *Application `json:"application,omitempty"`
	Mentions           []Mention    `json:"mentions"`
	Tags               []Tag        `json:"tags"`
	Emojis             []Emoji      `json:"emojis"`
	ReblogsCount       uint64       `json:"reblogs_count"`
	FavouritesCount    uint64       `json:"favourites_count"`
	RepliesCount       uint64       `json:"replies_count"`
	InReplyToID        *string      `json:"in_reply_to_id"`
	InReplyToAccountID *string      `json:"in_reply_to_account_id"`
	Reblog             *Status      `json:"reblog"`
	Poll               *Poll        `json:"poll,omitempty"`
	Language           *string      `json:"language"`

	// Text is the plain source, returned instead of Content after deletion.
	Text *string `json:"text,omitempty"`

	Favourited *bool `json:"favourited,omitempty"`
	Reblogged  *bool `json:"reblogged,omitempty"`
	Muted      *bool `json:"muted,omitempty"`
	Bookmarked *bool `json:"bookmarked,omitempty"`
	Pinned     *bool `json:"pinned,omitempty"`
}

// Mention of another account inside a status.
type Mention struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
	URL      string `json:"url"`
}

// Tag is a hashtag used in a status.
type Tag struct {
	Name    string    `json:"name"` // without the leading '#'
	URL     string    `json:"url"`
	History []History `json:"history,omitempty"`
}

// History is one day of hashtag usage. The API returns the numbers as strings.
type History struct {
	Day      string `json:"day"`
	Uses     string `json:"uses"`
	Accounts string `json:"accounts"`
}

// Emoji is a custom emoji.
type Emoji struct {
	Shortcode string `json:"shortcode"`
	URL       string `json:"url"`
	StaticURL string `json:"static_url"`
}

// Application that posted a status.
type Application struct {
	Name    string  `json:"name"`
	Website *string `json:"website,omitempty"`
}

// Attachment is a media file attached to a status.
type Attachment struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"` // image, video, gifv, audio, unknown
	URL         string  `json:"url"`
	RemoteURL   *string `json:"remote_url,omitempty"`
	PreviewURL  string  `json:"preview_url"`
	Description *string `json:"description,omitempty"`
}

// Poll attached to a status.
type Poll struct {
	ID         string       `json:"id"`
	ExpiresAt  *time.Time   `json:"expires_at"`
	Expired    bool         `json:"expired"`
	Multiple   bool         `json:"multiple"`
	VotesCount uint64       `json:"votes_count"`
	Options    []PollOption `json:"options"`
	Voted      *bool        `json:"voted,omitempty"`
}

// PollOption is one choice of a Poll.
type PollOption struct {
	Title      string  `json:"title"`
	VotesCount *uint64 `json:"votes_count"`
}
