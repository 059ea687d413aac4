/*
Package session holds the conversational state of a traversal.

A Session is the ordered record log of one node. Records stream in while a
model turn is running and are sealed when the turn ends; observers see every
mutation after it has been applied.

A Manager serializes access to persisted checkpoints, combining per-ID local
locks with an optional distributed locker so several replicas can resume the
same traversal safely.
*/
package session
