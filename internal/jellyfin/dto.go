package jellyfin

// Wire types of the Jellyfin REST API. Only the fields the rules read are
// decoded.

type nameID struct {
	Name string `json:"Name"`
	ID   string `json:"Id"`
}

type personDTO struct {
	Name string `json:"Name"`
	Role string `json:"Role"`
	Type string `json:"Type"`
}

type mediaStreamDTO struct {
	Type     string `json:"Type"`
	Codec    string `json:"Codec"`
	Language string `json:"Language"`
	Channels int    `json:"Channels"`
	Width    int    `json:"Width"`
	Height   int    `json:"Height"`
}

type userDataDTO struct {
	Played                bool   `json:"Played"`
	PlayCount             int    `json:"PlayCount"`
	IsFavorite            bool   `json:"IsFavorite"`
	LastPlayedDate        string `json:"LastPlayedDate"`
	PlaybackPositionTicks int64  `json:"PlaybackPositionTicks"`
}

type itemDTO struct {
	ID                string           `json:"Id"`
	Name              string           `json:"Name"`
	SortName          string           `json:"SortName"`
	Type              string           `json:"Type"`
	Overview          string           `json:"Overview"`
	ProductionYear    int              `json:"ProductionYear"`
	CommunityRating   float64          `json:"CommunityRating"`
	CriticRating      float64          `json:"CriticRating"`
	OfficialRating    string           `json:"OfficialRating"`
	RunTimeTicks      int64            `json:"RunTimeTicks"`
	Path              string           `json:"Path"`
	Container         string           `json:"Container"`
	DateCreated       string           `json:"DateCreated"`
	PremiereDate      string           `json:"PremiereDate"`
	DateLastSaved     string           `json:"DateLastSaved"`
	Genres            []string         `json:"Genres"`
	Tags              []string         `json:"Tags"`
	Studios           []nameID         `json:"Studios"`
	Artists           []string         `json:"Artists"`
	AlbumArtists      []nameID         `json:"AlbumArtists"`
	Album             string           `json:"Album"`
	ParentID          string           `json:"ParentId"`
	SeriesID          string           `json:"SeriesId"`
	SeriesName        string           `json:"SeriesName"`
	ParentIndexNumber *int             `json:"ParentIndexNumber"`
	IndexNumber       *int             `json:"IndexNumber"`
	People            []personDTO      `json:"People"`
	MediaStreams      []mediaStreamDTO `json:"MediaStreams"`
	UserData          *userDataDTO     `json:"UserData"`
}

type itemsResponse struct {
	Items            []itemDTO `json:"Items"`
	TotalRecordCount int       `json:"TotalRecordCount"`
}

type userDTO struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}
