package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/chase3718/opl3relay/internal/midiin"
	"github.com/chase3718/opl3relay/internal/opl"
	"github.com/chase3718/opl3relay/internal/serialport"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports and MIDI inputs",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		serials, err := serialport.List()
		if err != nil {
			return err
		}
		midis, err := midiin.List()
		if err != nil {
			// serial listing is still useful without a MIDI backend
			logger.Warn("midi: list failed", "err", err)
		}
		printPorts(out, serials, midis)
		return nil
	},
}

var banksCmd = &cobra.Command{
	Use:   "banks",
	Short: "List embedded instrument banks and volume models",
	Run: func(cmd *cobra.Command, args []string) {
		printBanks(cmd.OutOrStdout())
	},
}

func printPorts(w io.Writer, serials []serialport.Info, midis []string) {
	fmt.Fprintln(w, "Serial ports:")
	if len(serials) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, p := range serials {
		line := "  " + p.String()
		if p.USB {
			line += fmt.Sprintf(" [%s:%s]", p.VID, p.PID)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintln(w, "MIDI inputs:")
	fmt.Fprintf(w, "  -  <virtual port> (leave midi.port empty)\n")
	for i, name := range midis {
		fmt.Fprintf(w, "  %d  %s\n", i, name)
	}
}

func printBanks(w io.Writer) {
	fmt.Fprintln(w, "Banks:")
	for i, b := range opl.Banks {
		fmt.Fprintf(w, "  %d - %s\n", i, b.Name)
	}
	fmt.Fprintln(w, "Volume models:")
	for _, m := range opl.VolumeModels {
		fmt.Fprintf(w, "  %s\n", m)
	}
}
