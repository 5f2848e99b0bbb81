// Package store persists favorites in a single DynamoDB table.
//
// Each favorite is stored as two records that are always written and removed
// together in one TransactWriteItems call:
//
//	entity   PK=USER#{userId}            SK=FAV#{id}          Type=FAVORITE
//	marker   PK=UQ#USER#{userId}#MOVIE   SK=MOVIE#{movieId}   Type=FAVORITE_UQ
//
// The marker turns "does this user already have this movie" into a key
// presence check, so the conditional put in [Store.Create] is the authority
// for the (user, movie) uniqueness constraint. The entity also carries
// GSI1PK/GSI1SK attributes, which feed the GSI1 index used by
// [Store.ExistsByMovieID] as an optimistic pre-check.
//
// # Table
//
// [CreateTableInput] describes the table: string keys PK and SK, the GSI1
// index on GSI1PK/GSI1SK and an OLD_IMAGE stream used by the marker cleanup
// handler in package stream.
//
// # Pagination
//
// [Store.ListByUser] returns an opaque cursor wrapping DynamoDB's
// LastEvaluatedKey. Cursors are stateless. A cursor that cannot be decoded,
// or that belongs to another user, restarts the listing from the beginning.
//
// # Errors
//
//   - [ErrConflict] - a transactional write was rejected by its conditions
//
// Absence is not an error: GetByID and Update report it with a false flag and
// Delete with a false result. Any other failure from DynamoDB is wrapped and
// returned unchanged.
package store
