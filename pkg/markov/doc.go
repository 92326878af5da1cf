/*
Package markov provides a database-backed triad model for training on text
and generating text from it.

A triad is an ordered triple of tokens with an occurrence count. Training
slides a three-token window over each input and merges the resulting triads
into a single SQLite table, either adding to or overwriting the persisted
counts. Generation is a weighted random walk: each step looks up the tokens
observed after the two most recent ones and draws one in proportion to its
count, falling back to the most recent token alone and then to a fresh
sentence start when the context is unknown.

Store owns the table and its lookups, Generator owns the walk and holds no
per-walk state; the cursor is an explicit State, so one Store and one
Generator can serve any number of concurrent walks.
*/
package markov
