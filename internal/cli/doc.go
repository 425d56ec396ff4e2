// Package cli implements the interactive AudioKeeper shell.
//
// The shell reads one command per line:
//
//	download <id> <url> [title]   store an item for offline playback
//	cancel <id>                   cancel a running download
//	play [id]                     start a session for id, or play the current one
//	pause | resume | stop         transport control
//	seek <sec>                    jump to a position
//	rate <x>                      change the playback rate
//	retry                         recover a session in error
//	status [id]                   show the session or an item
//	list                          list stored items
//	size                          total size of stored items
//	remove <id>                   delete a stored item
//	removeall                     delete every stored item (asks first)
//	help | exit | quit
package cli
