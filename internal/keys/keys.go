// Package keys builds the partition, sort and index key strings of the favorites table.
//
// Every record lives in one table. Favorite entities and their uniqueness markers
// are told apart purely by key shape:
//
//	entity   PK=USER#{userId}                SK=FAV#{id}
//	marker   PK=UQ#USER#{userId}#MOVIE       SK=MOVIE#{movieId}
//	GSI1     GSI1PK=USER#{userId}#MOVIE      GSI1SK={movieId}
package keys

const (
	userPrefix     = "USER#"
	uniquePrefix   = "UQ#USER#"
	moviePrefix    = "MOVIE#"
	movieSuffix    = "#MOVIE"
	FavoritePrefix = "FAV#"
)

// UserPK is the partition key holding every favorite of a user.
func UserPK(userID string) string {
	return userPrefix + userID
}

// FavoriteSK is the sort key of a favorite entity. Time-ordered ids keep the
// partition sorted by creation time.
func FavoriteSK(id string) string {
	return FavoritePrefix + id
}

// MovieIndexPK is the GSI1 partition key used for movie existence lookups.
func MovieIndexPK(userID string) string {
	return userPrefix + userID + movieSuffix
}

// MovieIndexSK is the GSI1 sort key.
func MovieIndexSK(movieID string) string {
	return movieID
}

// UniquePK is the partition key of the (user, movie) uniqueness markers.
func UniquePK(userID string) string {
	return uniquePrefix + userID + movieSuffix
}

// UniqueSK is the sort key of a uniqueness marker.
func UniqueSK(movieID string) string {
	return moviePrefix + movieID
}
