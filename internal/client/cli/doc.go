// Package cli implements the vaultexport command line.
//
// Commands
//
//	init                          create the vault key material
//	import <file> [mime]          encrypt a file into the vault
//	list                          list attachments
//	export -o <zip> [-f] [-offline] [ids...]
//	                              write a zip of the decrypted attachments
//	mark-uploaded <id>            allow exports to drop the local ciphertext
//
// Global flags (see package config) may appear anywhere on the command line;
// command flags must come before the command's positional arguments.
package cli
