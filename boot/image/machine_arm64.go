package image

const hostMachine = MachineARM64
