package jikan

// Anime is the subset of the catalog's anime resource the pipeline uses.
type Anime struct {
	MALID         int64   `json:"mal_id"`
	Title         string  `json:"title"`
	TitleEnglish  string  `json:"title_english"`
	TitleJapanese string  `json:"title_japanese"`
	Episodes      int     `json:"episodes"`
	Season        string  `json:"season"`
	Year          int     `json:"year"`
	Members       int     `json:"members"`
	Score         float64 `json:"score"`
	Genres        []Genre `json:"genres"`
}

// Genre is one entry from the genre listing.
type Genre struct {
	MALID int64  `json:"mal_id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Pagination carries the paging envelope of a list response.
type Pagination struct {
	LastVisiblePage int  `json:"last_visible_page"`
	HasNextPage     bool `json:"has_next_page"`
}

type animeListResponse struct {
	Data       []Anime    `json:"data"`
	Pagination Pagination `json:"pagination"`
}

type animeResponse struct {
	Data Anime `json:"data"`
}

type genresResponse struct {
	Data []Genre `json:"data"`
}

// AnimePage is one page of an anime listing.
type AnimePage struct {
	Anime      []Anime
	Pagination Pagination
}
