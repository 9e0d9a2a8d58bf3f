// Parses flags and dispatches subcommands for the kiln tool.
//
// The tool accepts the following flags:
//
//	-q, --quiet   Suppress informational output.
//	-d, --debug   Enable debug output.
//	-f, --file    Override the manifest path.
//
// Flags override build-time defaults set via linker flags. After parsing, the
// global logger is reconfigured to reflect the final level before the
// subcommand runs.
//
// When the binary is invoked under a name other than "kiln" (via a symlink),
// the whole command line is treated as a manifest command invocation and the
// subcommand tree is bypassed.
package cli
