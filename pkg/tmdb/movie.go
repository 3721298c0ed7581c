package tmdb

// Movie is the projected subset of a TMDB movie document that gets cached.
// Decoding an upstream document into this struct performs the projection:
// unknown fields are dropped and absent fields stay nil, serializing as JSON
// null in the cache artifact.
type Movie struct {
	ID               *int             `json:"id"`
	Title            *string          `json:"title"`
	OriginalTitle    *string          `json:"original_title"`
	ReleaseDate      *string          `json:"release_date"`
	Status           *string          `json:"status"`
	Runtime          *int             `json:"runtime"`
	OriginalLanguage *string          `json:"original_language"`
	SpokenLanguages  []SpokenLanguage `json:"spoken_languages"`
	OriginCountry    []string         `json:"origin_country"`
	Genres           []Genre          `json:"genres"`
}

// SpokenLanguage is one entry of the spoken_languages sequence.
type SpokenLanguage struct {
	EnglishName string `json:"english_name"`
	ISO6391     string `json:"iso_639_1"`
	Name        string `json:"name"`
}

// Genre is one entry of the genres sequence.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
